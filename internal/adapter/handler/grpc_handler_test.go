package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/brickparty/brick-party/internal/core/domain"
	"github.com/brickparty/brick-party/internal/core/service"
)

func newTestClient(t *testing.T) *OwnershipClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	server := grpc.NewServer()
	sessions := service.NewSessions(fakeCatalog{testSet: testRows()}, nil, nil, nil)
	RegisterOwnershipServiceServer(server, NewGRPCHandler(sessions))
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewOwnershipClient(conn)
}

func TestGRPC_SetOwnedAndTotals(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	resp, err := client.SetOwned(ctx, &SetOwnedRequest{
		UserID: "user-1", SetNumber: testSet, Key: "970:1", Quantity: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.OwnedWrite{{Key: "970:1", Previous: 0, Quantity: 4}}, resp.Writes)

	resp, err = client.SetOwned(ctx, &SetOwnedRequest{
		UserID: "user-1", SetNumber: testSet, Key: "3626:1", Quantity: 2,
	})
	require.NoError(t, err)
	// both subparts complete, so the fig follows
	assert.Equal(t, []domain.OwnedWrite{
		{Key: "3626:1", Previous: 0, Quantity: 2},
		{Key: "fig:sw0001", Previous: 0, Quantity: 2},
	}, resp.Writes)

	totals, err := client.GetTotals(ctx, &GetTotalsRequest{UserID: "user-1", SetNumber: testSet})
	require.NoError(t, err)
	assert.Equal(t, testSet, totals.SetNumber)
	assert.Equal(t, service.Totals{TotalRequired: 6, OwnedTotal: 6, TotalMissing: 0}, totals.Totals)
}

func TestGRPC_Errors(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *SetOwnedRequest
		code codes.Code
	}{
		{"unknown key", &SetOwnedRequest{UserID: "u", SetNumber: testSet, Key: "nope:0", Quantity: 1}, codes.NotFound},
		{"unknown set", &SetOwnedRequest{UserID: "u", SetNumber: "99999-1", Key: "3626:1", Quantity: 1}, codes.NotFound},
		{"no user", &SetOwnedRequest{SetNumber: testSet, Key: "3626:1", Quantity: 1}, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.SetOwned(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}
