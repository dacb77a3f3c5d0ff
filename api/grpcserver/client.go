package grpcserver

import (
	"context"
	"encoding/base64"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls weakgate.v1.Views.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Open(ctx context.Context, opts ...grpc.CallOption) (uint64, error) {
	out := new(wrapperspb.UInt64Value)
	if err := c.cc.Invoke(ctx, fullMethod("Open"), &emptypb.Empty{}, out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

func (c *Client) Close(ctx context.Context, id uint64, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod("Close"), wrapperspb.UInt64(id), new(emptypb.Empty), opts...)
}

// Get reads key through view id.
func (c *Client) Get(ctx context.Context, id uint64, key string, opts ...grpc.CallOption) ([]byte, error) {
	return c.get(ctx, map[string]interface{}{"view": float64(id), "key": key}, opts)
}

// Latest reads the current value of key.
func (c *Client) Latest(ctx context.Context, key string, opts ...grpc.CallOption) ([]byte, error) {
	return c.get(ctx, map[string]interface{}{"key": key}, opts)
}

func (c *Client) get(ctx context.Context, fields map[string]interface{}, opts []grpc.CallOption) ([]byte, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, fullMethod("Get"), in, out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// KV is one entry returned by Scan.
type KV struct {
	Key   string
	Value []byte
}

func (c *Client) Scan(ctx context.Context, id uint64, prefix string, opts ...grpc.CallOption) ([]KV, error) {
	in, err := structpb.NewStruct(map[string]interface{}{
		"view":   float64(id),
		"prefix": prefix,
	})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("Scan"), in, out, opts...); err != nil {
		return nil, err
	}

	items := out.GetFields()["items"].GetListValue().GetValues()
	kvs := make([]KV, 0, len(items))
	for _, item := range items {
		fields := item.GetStructValue().GetFields()
		value, err := base64.StdEncoding.DecodeString(fields["value"].GetStringValue())
		if err != nil {
			return nil, errors.Wrap(err, "decode scan value")
		}
		kvs = append(kvs, KV{Key: fields["key"].GetStringValue(), Value: value})
	}
	return kvs, nil
}

func (c *Client) Put(ctx context.Context, key string, value []byte, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]interface{}{
		"key":   key,
		"value": base64.StdEncoding.EncodeToString(value),
	})
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, fullMethod("Put"), in, new(emptypb.Empty), opts...)
}

func (c *Client) Delete(ctx context.Context, key string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod("Delete"), wrapperspb.String(key), new(emptypb.Empty), opts...)
}

func (c *Client) Stats(ctx context.Context, opts ...grpc.CallOption) (map[string]interface{}, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("Stats"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
