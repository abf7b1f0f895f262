// Package transport implements the Transport collaborator (spec §6)
// over a real network: a small request/response envelope carried
// across google.golang.org/grpc, grounded on the teacher's
// pkg/net/grpc/client and pkg/net/grpc/server (connection lifecycle,
// retry, keepalive shape) and p2p/kademlia/network.go (FindNode /
// FindValue RPC handling), but without network.go's hand-rolled TCP
// framing and ALTS-specific credential type — TLS/credential handling
// is delegated entirely to the credentials.TransportCredentials the
// caller supplies in ClientOptions.Creds and to NewServer, matching this spec's
// non-goals around wire framing and certificate handling.
package transport

import (
	"github.com/lumeranet/corekad/internal/kbucket"
	"github.com/lumeranet/corekad/pkg/canon"
)

type op byte

const (
	opFindNode op = iota + 1
	opFindValue
)

// wirePeer is the wire projection of a kbucket.PeerItem: only remote,
// dialable peers ever cross the network, so Object is always a
// ServerDescriptor and never needs to travel as a tagged union.
type wirePeer struct {
	ID       []byte
	Address  string
	LastSeen int64
}

func toWirePeer(p *kbucket.PeerItem) wirePeer {
	desc, _ := p.Object.(kbucket.ServerDescriptor)
	return wirePeer{ID: p.ID, Address: desc.Address, LastSeen: p.LastSeen}
}

func fromWirePeer(w wirePeer) *kbucket.PeerItem {
	id := kbucket.NodeId(w.ID)
	return &kbucket.PeerItem{
		ID:       id,
		Key:      kbucket.KeyOf(kbucket.HashWallet{}, id),
		LastSeen: w.LastSeen,
		Object:   kbucket.ServerDescriptor{Address: w.Address},
	}
}

type request struct {
	Op     op
	Target []byte
}

type responseEnvelope struct {
	Peers []wirePeer
	Value []byte
	Found bool
	Err   string
}

func peerTerm(p wirePeer) canon.Term {
	return canon.List(canon.Bytes(p.ID), canon.Bytes([]byte(p.Address)), canon.Int(p.LastSeen))
}

func peerFromTerm(t canon.Term) wirePeer {
	f := t.List
	return wirePeer{ID: f[0].Bytes, Address: string(f[1].Bytes), LastSeen: f[2].Int}
}

func encodeRequest(r request) ([]byte, error) {
	return canon.Encode(canon.List(canon.Int(int64(r.Op)), canon.Bytes(r.Target)))
}

func decodeRequest(data []byte) (request, error) {
	t, err := canon.Decode(data)
	if err != nil {
		return request{}, err
	}
	return request{Op: op(t.List[0].Int), Target: t.List[1].Bytes}, nil
}

func encodeResponse(r responseEnvelope) ([]byte, error) {
	peers := make([]canon.Term, len(r.Peers))
	for i, p := range r.Peers {
		peers[i] = peerTerm(p)
	}
	found := int64(0)
	if r.Found {
		found = 1
	}
	return canon.Encode(canon.List(
		canon.List(peers...),
		canon.Bytes(r.Value),
		canon.Int(found),
		canon.Bytes([]byte(r.Err)),
	))
}

func decodeResponse(data []byte) (responseEnvelope, error) {
	t, err := canon.Decode(data)
	if err != nil {
		return responseEnvelope{}, err
	}
	f := t.List
	peerTerms := f[0].List
	peers := make([]wirePeer, len(peerTerms))
	for i, pt := range peerTerms {
		peers[i] = peerFromTerm(pt)
	}
	return responseEnvelope{
		Peers: peers,
		Value: f[1].Bytes,
		Found: f[2].Int != 0,
		Err:   string(f[3].Bytes),
	}, nil
}

// wirePeersToDomain converts a decoded peer list back into the
// []*kbucket.PeerItem shape the search driver expects.
func wirePeersToDomain(peers []wirePeer) []*kbucket.PeerItem {
	out := make([]*kbucket.PeerItem, len(peers))
	for i, p := range peers {
		out[i] = fromWirePeer(p)
	}
	return out
}

func domainPeersToWire(peers []*kbucket.PeerItem) []wirePeer {
	out := make([]wirePeer, len(peers))
	for i, p := range peers {
		out[i] = toWirePeer(p)
	}
	return out
}
