package semantic

import (
	"context"
	"errors"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/WessleyAI/wessley-rag/engine/domain"
	"github.com/WessleyAI/wessley-rag/pkg/fn"
)

const upsertBatch = 100

type pointsClient interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

type collectionsClient interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is a Store backed by a Qdrant server over gRPC.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pointsClient
	collections collectionsClient
}

var _ Store = (*VectorStore)(nil)

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// NewWithClients builds a VectorStore around pre-built clients. Close is a
// no-op on the result.
func NewWithClients(points pointsClient, collections collectionsClient) *VectorStore {
	return &VectorStore{points: points, collections: collections}
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection recreates the collection with a single cosine-distance
// named vector of size dim. Existing points are dropped.
func (v *VectorStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("semantic: create collection %s: %w", name,
			domain.NewValidationError("dimensions", fmt.Sprint(dim), domain.ErrInvalidConfiguration))
	}
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", storeErr(err))
	}
	for _, c := range list.GetCollections() {
		if c.GetName() != name {
			continue
		}
		if _, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
			return fmt.Errorf("semantic: delete collection %s: %w", name, storeErr(err))
		}
		break
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_ParamsMap{
				ParamsMap: &pb.VectorParamsMap{
					Map: map[string]*pb.VectorParams{
						VectorName: {Size: uint64(dim), Distance: pb.Distance_Cosine},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", name, storeErr(err))
	}
	return nil
}

// DeleteCollection drops the collection. Deleting a missing collection is
// not an error.
func (v *VectorStore) DeleteCollection(ctx context.Context, name string) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil {
		if s, ok := status.FromError(err); ok && s.Code() == codes.NotFound {
			return nil
		}
		return fmt.Errorf("semantic: delete collection %s: %w", name, storeErr(err))
	}
	return nil
}

// Upsert writes records in batches and waits for each batch to be applied.
func (v *VectorStore) Upsert(ctx context.Context, name string, records []Record) error {
	wait := true
	for _, batch := range fn.Chunk(records, upsertBatch) {
		points := fn.Map(batch, toPoint)
		_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: name,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("semantic: upsert %d points into %s: %w", len(points), name, storeErr(err))
		}
	}
	return nil
}

// Query performs a k-NN search against the named vector.
func (v *VectorStore) Query(ctx context.Context, name string, vector []float32, k int) ([]SearchResult, error) {
	if err := domain.ValidateK(k); err != nil {
		return nil, fmt.Errorf("semantic: query %s: %w", name, err)
	}
	vectorName := VectorName
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: name,
		Vector:         vector,
		VectorName:     &vectorName,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: query %s: %w", name, storeErr(err))
	}

	return fn.Map(resp.GetResult(), func(p *pb.ScoredPoint) SearchResult {
		return SearchResult{
			ID:    pointID(p.GetId()),
			Score: p.GetScore(),
			Text:  p.GetPayload()[PayloadText].GetStringValue(),
		}
	}), nil
}

// Count returns the exact number of points in the collection.
func (v *VectorStore) Count(ctx context.Context, name string) (uint64, error) {
	exact := true
	resp, err := v.points.Count(ctx, &pb.CountPoints{CollectionName: name, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("semantic: count %s: %w", name, storeErr(err))
	}
	return resp.GetResult().GetCount(), nil
}

func toPoint(r Record) *pb.PointStruct {
	return &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vectors{
				Vectors: &pb.NamedVectors{
					Vectors: map[string]*pb.Vector{VectorName: {Data: r.Vector}},
				},
			},
		},
		Payload: map[string]*pb.Value{
			PayloadText: {Kind: &pb.Value_StringValue{StringValue: r.Text}},
		},
	}
}

func pointID(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprint(id.GetNum())
}

// storeErr classifies a gRPC failure. A missing collection is reported as
// domain.ErrCollectionNotInitialized, everything else as a retrieval
// service failure.
func storeErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.NotFound {
		return fmt.Errorf("%w: %w", domain.ErrCollectionNotInitialized, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrRetrievalService, err)
}
