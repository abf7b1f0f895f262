package logtrace

import (
	"context"
	"fmt"

	"google.golang.org/grpc/grpclog"
)

// grpcLogger adapts logtrace to grpclog.LoggerV2 so the grpc-go
// runtime's own connection/handshake logging flows through the same
// structured sink as everything else transport touches, instead of
// grpc's default writer to stderr.
type grpcLogger struct {
	ctx context.Context
}

// NewGRPCLogger returns a grpclog.LoggerV2 that logs through logtrace.
func NewGRPCLogger(ctx context.Context) grpclog.LoggerV2 {
	return &grpcLogger{ctx: ctx}
}

func (g *grpcLogger) log(level func(context.Context, string, Fields), msg string) {
	level(g.ctx, msg, Fields{FieldModule: ValueModuleGRPC})
}

func (g *grpcLogger) Info(args ...interface{})  { g.log(Info, fmt.Sprint(args...)) }
func (g *grpcLogger) Infof(format string, args ...interface{}) {
	g.log(Info, fmt.Sprintf(format, args...))
}
func (g *grpcLogger) Infoln(args ...interface{}) { g.Info(args...) }

func (g *grpcLogger) Warning(args ...interface{}) { g.log(Warn, fmt.Sprint(args...)) }
func (g *grpcLogger) Warningf(format string, args ...interface{}) {
	g.log(Warn, fmt.Sprintf(format, args...))
}
func (g *grpcLogger) Warningln(args ...interface{}) { g.Warning(args...) }

func (g *grpcLogger) Error(args ...interface{}) { g.log(Error, fmt.Sprint(args...)) }
func (g *grpcLogger) Errorf(format string, args ...interface{}) {
	g.log(Error, fmt.Sprintf(format, args...))
}
func (g *grpcLogger) Errorln(args ...interface{}) { g.Error(args...) }

// Fatal logs at error level and panics rather than calling os.Exit,
// so a misbehaving grpc-go internal doesn't take the whole process
// down without a chance for a caller's recover to observe it.
func (g *grpcLogger) Fatal(args ...interface{}) {
	msg := fmt.Sprint(args...)
	g.log(Error, msg)
	panic(msg)
}

func (g *grpcLogger) Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	g.log(Error, msg)
	panic(msg)
}

func (g *grpcLogger) Fatalln(args ...interface{}) { g.Fatal(args...) }

// V reports whether verbosity level l is enabled; this adapter only
// surfaces warning/error-equivalent verbosity, matching logtrace's own
// default level in production.
func (g *grpcLogger) V(l int) bool { return l <= 1 }

// SetGRPCLogger installs a logtrace-backed logger as grpc-go's global
// LoggerV2, so every grpc.Server/ClientConn created afterward logs
// through logtrace.
func SetGRPCLogger(ctx context.Context) {
	grpclog.SetLoggerV2(NewGRPCLogger(ctx))
}
