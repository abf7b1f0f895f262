package search

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/lumeranet/corekad/internal/kbucket"
	"github.com/lumeranet/corekad/internal/merkle"
	"github.com/lumeranet/corekad/pkg/errors"
	"github.com/lumeranet/corekad/pkg/logtrace"
)

// Driver runs iterative parallel lookups against a routing table over
// a Transport (spec §4.3).
type Driver struct {
	kb        *kbucket.KBuckets
	transport Transport
	opts      Options
}

// New returns a Driver seeded from kb's own routing table.
func New(kb *kbucket.KBuckets, transport Transport, opts Options) *Driver {
	return &Driver{kb: kb, transport: transport, opts: opts.withDefaults()}
}

// FindNode runs the driver in find_node mode: converge on the k
// closest live peers to target (spec §4.3).
func (d *Driver) FindNode(ctx context.Context, target []byte) (Result, error) {
	return d.run(ctx, target, false)
}

// FindValue runs the driver in find_value mode: stop as soon as any
// peer returns a stored value, otherwise behave like FindNode
// (spec §4.3).
func (d *Driver) FindValue(ctx context.Context, target []byte) (Result, error) {
	return d.run(ctx, target, true)
}

// FindNodeAsync runs FindNode on a background goroutine, returning a
// channel that yields exactly one Result (or is closed on context
// cancellation without a send) — the "cancellation via a dropped
// result channel" mechanism spec §4.3 describes, mapped onto Go's
// context idiom (SPEC_FULL supplemented operation).
func (d *Driver) FindNodeAsync(ctx context.Context, target []byte) <-chan Result {
	return d.runAsync(ctx, target, false)
}

// FindValueAsync is FindNodeAsync's find_value counterpart.
func (d *Driver) FindValueAsync(ctx context.Context, target []byte) <-chan Result {
	return d.runAsync(ctx, target, true)
}

func (d *Driver) runAsync(ctx context.Context, target []byte, findValue bool) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		res, err := d.run(ctx, target, findValue)
		if err != nil {
			// the caller cancelled or the search errored; the channel is
			// closed with nothing sent, which is exactly what a caller
			// selecting on ctx.Done() alongside this channel expects.
			return
		}
		out <- res
	}()
	return out
}

// run is the driver's core loop, generalizing the teacher's iterate /
// iterateFindValue into one shape parameterised on findValue (spec §4.3).
func (d *Driver) run(ctx context.Context, target []byte, findValue bool) (Result, error) {
	targetKey := kbucket.TargetKey(target)
	seeds := d.kb.NearestN(target, d.opts.K)
	if len(seeds) == 0 {
		return Result{}, nil
	}

	list := newShortlist(targetKey, seeds)
	sem := semaphore.NewWeighted(int64(d.opts.Alpha))

	type response struct {
		key     kbucket.ItemKey
		peer    kbucket.NodeId
		closer  []*kbucket.PeerItem
		value   merkle.Value
		found   bool
		err     error
	}
	responses := make(chan response, d.opts.Alpha)

	var wg sync.WaitGroup
	var foundValue merkle.Value
	var found bool
	var foundOnce sync.Once
	stop := make(chan struct{})

	dispatch := func(c *candidate) {
		wg.Add(1)
		if err := sem.Acquire(ctx, 1); err != nil {
			// ctx was cancelled while waiting for a pool slot; report it
			// as a failed contact on its own goroutine so the drain
			// loop's inFlight accounting stays balanced instead of
			// waiting on a response that will never arrive, without
			// risking a blocking send against a full buffer here.
			go func() {
				defer wg.Done()
				select {
				case responses <- response{key: c.item.Key, peer: c.item.ID, err: err}:
				case <-stop:
				}
			}()
			return
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			var r response
			r.key = c.item.Key
			r.peer = c.item.ID
			if findValue {
				val, ok, closer, err := d.transport.FindValue(ctx, c.item, target)
				r.value, r.found, r.closer, r.err = val, ok, closer, err
			} else {
				closer, err := d.transport.FindNode(ctx, c.item, target)
				r.closer, r.err = closer, err
			}
			select {
			case responses <- r:
			case <-stop:
			}
		}()
	}

	// drain loop: keep the α pool full until nothing queryable remains
	// in the top-K window and every in-flight worker has reported back.
	inFlight := 0
	for {
		select {
		case <-ctx.Done():
			close(stop)
			wg.Wait()
			return Result{}, errors.ErrSearchCancelled
		default:
		}

		for inFlight < d.opts.Alpha {
			batch := list.nextQueryable(d.opts.K, 1)
			if len(batch) == 0 {
				break
			}
			dispatch(batch[0])
			inFlight++
		}

		if inFlight == 0 {
			// nextQueryable found nothing to dispatch and nothing is
			// outstanding: the top-K window is fully queried.
			break
		}

		select {
		case <-ctx.Done():
			close(stop)
			wg.Wait()
			return Result{}, errors.ErrSearchCancelled
		case r := <-responses:
			inFlight--
			if r.err != nil {
				fails := list.recordFailure(r.key)
				logtrace.Debug(ctx, "search transport error", logtrace.Fields{
					logtrace.FieldModule: logtrace.ValueModuleSearch,
					logtrace.FieldPeer:   r.peer.String(),
					logtrace.FieldError:  r.err.Error(),
					"failures":           fails,
				})
				if fails >= d.opts.EvictAfterFailures {
					d.kb.MarkFailed(ctx, r.peer, d.opts.FailurePenaltySeconds)
				}
				continue
			}
			list.markVisited(r.key)
			list.add(r.closer)
			d.kb.InsertItems(r.closer)
			if findValue && r.found {
				foundOnce.Do(func() {
					foundValue = r.value
					found = true
				})
				close(stop)
			}
		}

		if found {
			break
		}
	}

	wg.Wait()
	close(responses)

	return Result{
		Closest: list.closestVisited(d.opts.K),
		Value:   foundValue,
		Found:   found,
	}, nil
}
