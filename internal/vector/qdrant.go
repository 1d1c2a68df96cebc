package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantRepository implements Repository using Qdrant over gRPC.
type QdrantRepository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	batchSize   int
}

// NewQdrant creates a Qdrant-backed repository. batchSize bounds the number
// of points per upsert request; <= 0 upserts everything in one request.
func NewQdrant(ctx context.Context, host string, port int, collection string, batchSize int) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &QdrantRepository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		batchSize:   batchSize,
	}, nil
}

func (r *QdrantRepository) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: r.collection,
	})
	if err != nil {
		return fmt.Errorf("qdrant collection check: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	return nil
}

func (r *QdrantRepository) Upsert(ctx context.Context, docs []Document) error {
	batch := r.batchSize
	if batch <= 0 {
		batch = len(docs)
	}

	for start := 0; start < len(docs); start += batch {
		end := start + batch
		if end > len(docs) {
			end = len(docs)
		}

		points := make([]*pb.PointStruct, 0, end-start)
		for _, d := range docs[start:end] {
			points = append(points, &pb.PointStruct{
				Id:      pointID(d.ID),
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Vector}}},
				Payload: map[string]*pb.Value{
					"text":       {Kind: &pb.Value_StringValue{StringValue: d.Text}},
					"page":       {Kind: &pb.Value_IntegerValue{IntegerValue: int64(d.Page)}},
					"has_images": {Kind: &pb.Value_BoolValue{BoolValue: d.HasImages}},
					"source":     {Kind: &pb.Value_StringValue{StringValue: d.Source}},
				},
			})
		}

		wait := true
		_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: r.collection,
			Points:         points,
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("qdrant upsert [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (r *QdrantRepository) Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchResult, error) {
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		Filter:         buildFilter(filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		results[i] = SearchResult{
			ID:        pointIDString(pt.Id),
			Score:     pt.Score,
			Text:      pt.Payload["text"].GetStringValue(),
			Page:      int(pt.Payload["page"].GetIntegerValue()),
			HasImages: pt.Payload["has_images"].GetBoolValue(),
			Source:    pt.Payload["source"].GetStringValue(),
		}
	}
	return results, nil
}

func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// buildFilter translates the metadata predicate to a Qdrant filter.
func buildFilter(f *Filter) *pb.Filter {
	if f == nil {
		return nil
	}

	var must []*pb.Condition
	if len(f.Pages) > 0 {
		pages := make([]int64, len(f.Pages))
		for i, p := range f.Pages {
			pages[i] = int64(p)
		}
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
				Key: "page",
				Match: &pb.Match{MatchValue: &pb.Match_Integers{
					Integers: &pb.RepeatedIntegers{Integers: pages},
				}},
			}},
		})
	}
	if f.HasImages != nil {
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
				Key:   "has_images",
				Match: &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: *f.HasImages}},
			}},
		})
	}

	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

// pointID maps a document id to a Qdrant point id. Chunk ids are run-local
// counters, so the numeric form is the common case; anything else falls back
// to a UUID-shaped id.
func pointID(id string) *pb.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: n}}
	}
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func pointIDString(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
