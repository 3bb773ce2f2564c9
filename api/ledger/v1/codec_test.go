package ledgerv1

import (
	"testing"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/encoding"
)

func TestJSONCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	if codec == nil {
		t.Fatal("json codec is not registered")
	}

	in := &SellRequest{
		UserID:   "u1",
		Items:    []SaleItem{{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("300.50")}},
		Discount: decimal.NewFromInt(100),
	}
	data, err := codec.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out SellRequest
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.UserID != "u1" || len(out.Items) != 1 || !out.Items[0].UnitPrice.Equal(in.Items[0].UnitPrice) {
		t.Fatalf("unexpected round trip: %+v", out)
	}
}

func TestJSONCodecEmptyBody(t *testing.T) {
	var out DeleteOrderResponse
	if err := (jsonCodec{}).Unmarshal(nil, &out); err != nil {
		t.Fatalf("empty body must decode to zero value: %v", err)
	}
}
