package ledgerv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName полное имя gRPC-сервиса.
const ServiceName = "ledger.v1.LedgerService"

// Полные имена методов.
const (
	MethodSell           = "/" + ServiceName + "/Sell"
	MethodRefund         = "/" + ServiceName + "/Refund"
	MethodDeleteOrder    = "/" + ServiceName + "/DeleteOrder"
	MethodGetOrder       = "/" + ServiceName + "/GetOrder"
	MethodListOrders     = "/" + ServiceName + "/ListOrders"
	MethodReceive        = "/" + ServiceName + "/Receive"
	MethodWriteOff       = "/" + ServiceName + "/WriteOff"
	MethodListBatches    = "/" + ServiceName + "/ListBatches"
	MethodGetStock       = "/" + ServiceName + "/GetStock"
	MethodStartShift     = "/" + ServiceName + "/StartShift"
	MethodCloseShift     = "/" + ServiceName + "/CloseShift"
	MethodEditShift      = "/" + ServiceName + "/EditShift"
	MethodGetActiveShift = "/" + ServiceName + "/GetActiveShift"
	MethodPreviewShift   = "/" + ServiceName + "/PreviewShift"
)

// LedgerServiceServer серверная часть API.
type LedgerServiceServer interface {
	Sell(context.Context, *SellRequest) (*SellResponse, error)
	Refund(context.Context, *RefundRequest) (*RefundResponse, error)
	DeleteOrder(context.Context, *DeleteOrderRequest) (*DeleteOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	Receive(context.Context, *ReceiveRequest) (*ReceiveResponse, error)
	WriteOff(context.Context, *WriteOffRequest) (*WriteOffResponse, error)
	ListBatches(context.Context, *ListBatchesRequest) (*ListBatchesResponse, error)
	GetStock(context.Context, *GetStockRequest) (*GetStockResponse, error)
	StartShift(context.Context, *StartShiftRequest) (*StartShiftResponse, error)
	CloseShift(context.Context, *CloseShiftRequest) (*CloseShiftResponse, error)
	EditShift(context.Context, *EditShiftRequest) (*EditShiftResponse, error)
	GetActiveShift(context.Context, *GetActiveShiftRequest) (*GetActiveShiftResponse, error)
	PreviewShift(context.Context, *PreviewShiftRequest) (*PreviewShiftResponse, error)
}

// UnimplementedLedgerServiceServer отвечает Unimplemented на все методы.
// Встраивается в реализацию, чтобы новые методы не ломали сборку.
type UnimplementedLedgerServiceServer struct{}

func (UnimplementedLedgerServiceServer) Sell(context.Context, *SellRequest) (*SellResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Sell not implemented")
}
func (UnimplementedLedgerServiceServer) Refund(context.Context, *RefundRequest) (*RefundResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Refund not implemented")
}
func (UnimplementedLedgerServiceServer) DeleteOrder(context.Context, *DeleteOrderRequest) (*DeleteOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeleteOrder not implemented")
}
func (UnimplementedLedgerServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}
func (UnimplementedLedgerServiceServer) ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOrders not implemented")
}
func (UnimplementedLedgerServiceServer) Receive(context.Context, *ReceiveRequest) (*ReceiveResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Receive not implemented")
}
func (UnimplementedLedgerServiceServer) WriteOff(context.Context, *WriteOffRequest) (*WriteOffResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method WriteOff not implemented")
}
func (UnimplementedLedgerServiceServer) ListBatches(context.Context, *ListBatchesRequest) (*ListBatchesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListBatches not implemented")
}
func (UnimplementedLedgerServiceServer) GetStock(context.Context, *GetStockRequest) (*GetStockResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStock not implemented")
}
func (UnimplementedLedgerServiceServer) StartShift(context.Context, *StartShiftRequest) (*StartShiftResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StartShift not implemented")
}
func (UnimplementedLedgerServiceServer) CloseShift(context.Context, *CloseShiftRequest) (*CloseShiftResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CloseShift not implemented")
}
func (UnimplementedLedgerServiceServer) EditShift(context.Context, *EditShiftRequest) (*EditShiftResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method EditShift not implemented")
}
func (UnimplementedLedgerServiceServer) GetActiveShift(context.Context, *GetActiveShiftRequest) (*GetActiveShiftResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetActiveShift not implemented")
}
func (UnimplementedLedgerServiceServer) PreviewShift(context.Context, *PreviewShiftRequest) (*PreviewShiftResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PreviewShift not implemented")
}

// RegisterLedgerServiceServer регистрирует реализацию на сервере.
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

func unaryHandler[Req, Resp any](fullMethod string, call func(LedgerServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LedgerServiceDesc описание сервиса для grpc.Server.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Sell", Handler: unaryHandler(MethodSell, LedgerServiceServer.Sell)},
		{MethodName: "Refund", Handler: unaryHandler(MethodRefund, LedgerServiceServer.Refund)},
		{MethodName: "DeleteOrder", Handler: unaryHandler(MethodDeleteOrder, LedgerServiceServer.DeleteOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(MethodGetOrder, LedgerServiceServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler(MethodListOrders, LedgerServiceServer.ListOrders)},
		{MethodName: "Receive", Handler: unaryHandler(MethodReceive, LedgerServiceServer.Receive)},
		{MethodName: "WriteOff", Handler: unaryHandler(MethodWriteOff, LedgerServiceServer.WriteOff)},
		{MethodName: "ListBatches", Handler: unaryHandler(MethodListBatches, LedgerServiceServer.ListBatches)},
		{MethodName: "GetStock", Handler: unaryHandler(MethodGetStock, LedgerServiceServer.GetStock)},
		{MethodName: "StartShift", Handler: unaryHandler(MethodStartShift, LedgerServiceServer.StartShift)},
		{MethodName: "CloseShift", Handler: unaryHandler(MethodCloseShift, LedgerServiceServer.CloseShift)},
		{MethodName: "EditShift", Handler: unaryHandler(MethodEditShift, LedgerServiceServer.EditShift)},
		{MethodName: "GetActiveShift", Handler: unaryHandler(MethodGetActiveShift, LedgerServiceServer.GetActiveShift)},
		{MethodName: "PreviewShift", Handler: unaryHandler(MethodPreviewShift, LedgerServiceServer.PreviewShift)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/ledger.json",
}

// LedgerServiceClient клиентская часть API.
type LedgerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerServiceClient создаёт клиента поверх соединения.
func NewLedgerServiceClient(cc grpc.ClientConnInterface) *LedgerServiceClient {
	return &LedgerServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerServiceClient) Sell(ctx context.Context, in *SellRequest, opts ...grpc.CallOption) (*SellResponse, error) {
	return invoke[SellResponse](ctx, c.cc, MethodSell, in, opts)
}

func (c *LedgerServiceClient) Refund(ctx context.Context, in *RefundRequest, opts ...grpc.CallOption) (*RefundResponse, error) {
	return invoke[RefundResponse](ctx, c.cc, MethodRefund, in, opts)
}

func (c *LedgerServiceClient) DeleteOrder(ctx context.Context, in *DeleteOrderRequest, opts ...grpc.CallOption) (*DeleteOrderResponse, error) {
	return invoke[DeleteOrderResponse](ctx, c.cc, MethodDeleteOrder, in, opts)
}

func (c *LedgerServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, MethodGetOrder, in, opts)
}

func (c *LedgerServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, MethodListOrders, in, opts)
}

func (c *LedgerServiceClient) Receive(ctx context.Context, in *ReceiveRequest, opts ...grpc.CallOption) (*ReceiveResponse, error) {
	return invoke[ReceiveResponse](ctx, c.cc, MethodReceive, in, opts)
}

func (c *LedgerServiceClient) WriteOff(ctx context.Context, in *WriteOffRequest, opts ...grpc.CallOption) (*WriteOffResponse, error) {
	return invoke[WriteOffResponse](ctx, c.cc, MethodWriteOff, in, opts)
}

func (c *LedgerServiceClient) ListBatches(ctx context.Context, in *ListBatchesRequest, opts ...grpc.CallOption) (*ListBatchesResponse, error) {
	return invoke[ListBatchesResponse](ctx, c.cc, MethodListBatches, in, opts)
}

func (c *LedgerServiceClient) GetStock(ctx context.Context, in *GetStockRequest, opts ...grpc.CallOption) (*GetStockResponse, error) {
	return invoke[GetStockResponse](ctx, c.cc, MethodGetStock, in, opts)
}

func (c *LedgerServiceClient) StartShift(ctx context.Context, in *StartShiftRequest, opts ...grpc.CallOption) (*StartShiftResponse, error) {
	return invoke[StartShiftResponse](ctx, c.cc, MethodStartShift, in, opts)
}

func (c *LedgerServiceClient) CloseShift(ctx context.Context, in *CloseShiftRequest, opts ...grpc.CallOption) (*CloseShiftResponse, error) {
	return invoke[CloseShiftResponse](ctx, c.cc, MethodCloseShift, in, opts)
}

func (c *LedgerServiceClient) EditShift(ctx context.Context, in *EditShiftRequest, opts ...grpc.CallOption) (*EditShiftResponse, error) {
	return invoke[EditShiftResponse](ctx, c.cc, MethodEditShift, in, opts)
}

func (c *LedgerServiceClient) GetActiveShift(ctx context.Context, in *GetActiveShiftRequest, opts ...grpc.CallOption) (*GetActiveShiftResponse, error) {
	return invoke[GetActiveShiftResponse](ctx, c.cc, MethodGetActiveShift, in, opts)
}

func (c *LedgerServiceClient) PreviewShift(ctx context.Context, in *PreviewShiftRequest, opts ...grpc.CallOption) (*PreviewShiftResponse, error) {
	return invoke[PreviewShiftResponse](ctx, c.cc, MethodPreviewShift, in, opts)
}
