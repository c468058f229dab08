package rpc

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/xonx4l/orderbook/domain"
	"github.com/xonx4l/orderbook/usecase"
)

const ServiceName = "orderbook.v1.OrderBookService"

// Response headers of GetLastUpdateId.
const (
	SynchronizedHeader = "x-orderbook-synchronized"
	StateHeader        = "x-orderbook-state"
)

const (
	getOrderBookSnapshotMethod = "/" + ServiceName + "/GetOrderBookSnapshot"
	getLastUpdateIDMethod      = "/" + ServiceName + "/GetLastUpdateId"
)

// OrderBookServiceServer uses well-known message types on the wire, so no
// generated code is needed on either side.
//
// GetOrderBookSnapshot takes {"provider": "binance", "market": "btc_usdt",
// "max_depth": 10}. GetLastUpdateId answers with the local sequence and
// reports the sync flag and state in response headers.
type OrderBookServiceServer interface {
	GetOrderBookSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLastUpdateId(context.Context, *emptypb.Empty) (*wrapperspb.UInt64Value, error)
}

var OrderBookServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderBookServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetOrderBookSnapshot",
			Handler:    getOrderBookSnapshotHandler,
		},
		{
			MethodName: "GetLastUpdateId",
			Handler:    getLastUpdateIDHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "orderbook/v1/orderbook.proto",
}

func getOrderBookSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderBookServiceServer).GetOrderBookSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getOrderBookSnapshotMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrderBookServiceServer).GetOrderBookSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getLastUpdateIDHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderBookServiceServer).GetLastUpdateId(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getLastUpdateIDMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OrderBookServiceServer).GetLastUpdateId(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func (s *service) GetOrderBookSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()

	provider := fields["provider"].GetStringValue()
	if !s.validationService.IsSupportedProvider(provider) {
		return nil, status.Errorf(codes.InvalidArgument, "provider %q is not supported", provider)
	}

	market := fields["market"].GetStringValue()
	marketSymbol, err := domain.NewMarketSymbolFromString(market)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid market symbol %q, expected base_quote", market)
	}

	depth, err := s.validationService.Depth(fields["max_depth"])
	if err != nil {
		return nil, err
	}

	view, err := s.orderbookSnapshotUseCase.GetOrderBookSnapshot(ctx, marketSymbol, depth)
	if err != nil {
		if errors.Is(err, usecase.ErrUnknownSymbol) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	resp, err := structpb.NewStruct(depthViewFields(view))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func (s *service) GetLastUpdateId(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt64Value, error) {
	view := s.local.Depth(1)

	header := metadata.Pairs(
		SynchronizedHeader, strconv.FormatBool(view.Synchronized),
		StateHeader, view.State.String(),
	)
	if err := grpc.SetHeader(ctx, header); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.UInt64(view.Snapshot.LastUpdateID), nil
}

// last_update_id travels as a string: a JSON number cannot hold every uint64.
func depthViewFields(view *domain.DepthView) map[string]interface{} {
	snapshot := view.Snapshot

	fields := map[string]interface{}{
		"source":         string(snapshot.Source),
		"state":          view.State.String(),
		"synchronized":   view.Synchronized,
		"last_update_id": strconv.FormatUint(snapshot.LastUpdateID, 10),
		"bids":           levelList(snapshot.Bids),
		"asks":           levelList(snapshot.Asks),
		"best_bid":       nil,
		"best_ask":       nil,
		"spread":         nil,
	}

	if bid, ok := snapshot.BestBid(); ok {
		fields["best_bid"] = levelFields(bid)
	}
	if ask, ok := snapshot.BestAsk(); ok {
		fields["best_ask"] = levelFields(ask)
	}
	if spread, ok := snapshot.Spread(); ok {
		fields["spread"] = spread.String()
	}
	return fields
}

func levelList(levels []domain.PriceLevel) []interface{} {
	list := make([]interface{}, 0, len(levels))
	for _, level := range levels {
		list = append(list, levelFields(level))
	}
	return list
}

func levelFields(level domain.PriceLevel) map[string]interface{} {
	return map[string]interface{}{
		"price": level.Price.String(),
		"qty":   level.Quantity.String(),
	}
}

type OrderBookServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderBookServiceClient(cc grpc.ClientConnInterface) *OrderBookServiceClient {
	return &OrderBookServiceClient{cc: cc}
}

func (c *OrderBookServiceClient) GetOrderBookSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getOrderBookSnapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type LastUpdateID struct {
	Value        uint64
	Synchronized bool
	State        string
}

func (c *OrderBookServiceClient) GetLastUpdateId(ctx context.Context, opts ...grpc.CallOption) (*LastUpdateID, error) {
	var header metadata.MD
	out := new(wrapperspb.UInt64Value)
	opts = append(opts, grpc.Header(&header))
	if err := c.cc.Invoke(ctx, getLastUpdateIDMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}

	return &LastUpdateID{
		Value:        out.GetValue(),
		Synchronized: firstValue(header, SynchronizedHeader) == "true",
		State:        firstValue(header, StateHeader),
	}, nil
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
