package handler

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/brickparty/brick-party/internal/core/domain"
	"github.com/brickparty/brick-party/internal/core/service"
)

const OwnershipServiceName = "brickparty.v1.OwnershipService"

type SetOwnedRequest struct {
	UserID      string `json:"userId"`
	SetNumber   string `json:"setNumber"`
	Key         string `json:"key"`
	Quantity    int    `json:"quantity"`
	SkipCascade bool   `json:"skipCascade"`
	CloudSync   bool   `json:"cloudSync"`
}

type SetOwnedResponse struct {
	Writes []domain.OwnedWrite `json:"writes"`
	Totals service.Totals      `json:"totals"`
}

type GetTotalsRequest struct {
	UserID    string `json:"userId"`
	SetNumber string `json:"setNumber"`
	CloudSync bool   `json:"cloudSync"`
}

type GetTotalsResponse struct {
	SetNumber string         `json:"setNumber"`
	Totals    service.Totals `json:"totals"`
}

type OwnershipServiceServer interface {
	SetOwned(ctx context.Context, req *SetOwnedRequest) (*SetOwnedResponse, error)
	GetTotals(ctx context.Context, req *GetTotalsRequest) (*GetTotalsResponse, error)
}

type GRPCHandler struct {
	sessions *service.Sessions
}

func NewGRPCHandler(sessions *service.Sessions) *GRPCHandler {
	return &GRPCHandler{sessions: sessions}
}

func (h *GRPCHandler) SetOwned(ctx context.Context, req *SetOwnedRequest) (*SetOwnedResponse, error) {
	session, err := h.open(ctx, req.UserID, req.SetNumber, req.CloudSync)
	if err != nil {
		return nil, err
	}

	writes, err := session.HandleOwnedChange(req.Key, req.Quantity, service.ChangeOptions{SkipCascade: req.SkipCascade})
	if err != nil {
		if errors.Is(err, service.ErrUnknownKey) {
			slog.Warn("owned change for unknown key", "set", req.SetNumber, "key", req.Key)
			return nil, status.Error(codes.NotFound, "unknown inventory key")
		}
		return nil, status.Error(codes.Internal, "internal error")
	}
	if writes == nil {
		writes = []domain.OwnedWrite{}
	}

	return &SetOwnedResponse{
		Writes: writes,
		Totals: session.Projection().Totals(),
	}, nil
}

func (h *GRPCHandler) GetTotals(ctx context.Context, req *GetTotalsRequest) (*GetTotalsResponse, error) {
	session, err := h.open(ctx, req.UserID, req.SetNumber, req.CloudSync)
	if err != nil {
		return nil, err
	}
	return &GetTotalsResponse{
		SetNumber: session.SetNumber(),
		Totals:    session.Projection().Totals(),
	}, nil
}

func (h *GRPCHandler) open(ctx context.Context, userID, setNumber string, cloudSync bool) (*service.Session, error) {
	if userID == "" || setNumber == "" {
		return nil, status.Error(codes.InvalidArgument, "userId and setNumber are required")
	}
	session, err := h.sessions.Open(ctx, userID, setNumber, cloudSync)
	if err != nil {
		if errors.Is(err, service.ErrSetNotFound) {
			return nil, status.Error(codes.NotFound, "set not found")
		}
		slog.Error("open session failed", "user", userID, "set", setNumber, "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return session, nil
}

func RegisterOwnershipServiceServer(s grpc.ServiceRegistrar, srv OwnershipServiceServer) {
	s.RegisterService(&ownershipServiceDesc, srv)
}

var ownershipServiceDesc = grpc.ServiceDesc{
	ServiceName: OwnershipServiceName,
	HandlerType: (*OwnershipServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetOwned", Handler: setOwnedHandler},
		{MethodName: "GetTotals", Handler: getTotalsHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func setOwnedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SetOwnedRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OwnershipServiceServer).SetOwned(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OwnershipServiceName + "/SetOwned"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OwnershipServiceServer).SetOwned(ctx, req.(*SetOwnedRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getTotalsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetTotalsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OwnershipServiceServer).GetTotals(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OwnershipServiceName + "/GetTotals"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OwnershipServiceServer).GetTotals(ctx, req.(*GetTotalsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// OwnershipClient calls the service over the JSON codec.
type OwnershipClient struct {
	cc grpc.ClientConnInterface
}

func NewOwnershipClient(cc grpc.ClientConnInterface) *OwnershipClient {
	return &OwnershipClient{cc: cc}
}

func (c *OwnershipClient) SetOwned(ctx context.Context, req *SetOwnedRequest, opts ...grpc.CallOption) (*SetOwnedResponse, error) {
	out := new(SetOwnedResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+OwnershipServiceName+"/SetOwned", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OwnershipClient) GetTotals(ctx context.Context, req *GetTotalsRequest, opts ...grpc.CallOption) (*GetTotalsResponse, error) {
	out := new(GetTotalsResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+OwnershipServiceName+"/GetTotals", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
