package assigner

import (
	"context"

	"google.golang.org/grpc"

	"github.com/piplabs/subnet-worker-client/wep"
)

// GRPCDialer is the production Dialer: it keeps one long-lived
// ClientConn to the WEP endpoint (spec.md §6 `wep.endpoint`) and opens
// a fresh bidirectional stream per activity.
type GRPCDialer struct {
	conn *grpc.ClientConn
}

// NewGRPCDialer dials endpoint once; the returned Dialer is reused for
// every subsequent per-activity stream.
func NewGRPCDialer(ctx context.Context, endpoint string) (*GRPCDialer, error) {
	conn, err := wep.Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &GRPCDialer{conn: conn}, nil
}

func (d *GRPCDialer) OpenStream(ctx context.Context) (wep.TaskStream, error) {
	return wep.Open(ctx, d.conn)
}

func (d *GRPCDialer) Close() error {
	return d.conn.Close()
}
