// Package ledgerv1 описывает gRPC API ledger-service: сообщения, сервис и клиент.
// Сообщения передаются в JSON через codec с content-subtype "json".
package ledgerv1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName content-subtype, под которым зарегистрирован JSON codec.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ledgerv1: marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ledgerv1: unmarshal %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CallOption выбирает JSON codec для вызова. Клиент из NewLedgerServiceClient
// добавляет его сам.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
