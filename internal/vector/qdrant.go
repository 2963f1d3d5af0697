package vector

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const vectorSize = 768

type QdrantStore struct {
	Client *qdrant.Client
}

// Point is one indexed book. DocID is the stable identity the point id is
// derived from; the payload carries enough to re-join against the books table.
type Point struct {
	DocID  string
	BookID int64
	Title  string
	ISBN13 string
	Vector []float32
}

type Hit struct {
	BookID int64
	DocID  string
	Score  float32
}

func NewQdrantStore(ctx context.Context, addr string) (*QdrantStore, error) {
	if addr == "" {
		addr = "localhost:6334"
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		portStr = "6334"
	}

	port, _ := strconv.Atoi(portStr)

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize qdrant client: %w", err)
	}

	return &QdrantStore{Client: client}, nil
}

func (q *QdrantStore) EnsureCollection(ctx context.Context, name string) error {
	exists, err := q.Client.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return q.Client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     vectorSize,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
}

func (q *QdrantStore) UpsertBatch(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		// Deterministic point id: re-upserting the same document overwrites
		// instead of duplicating.
		id := uuid.NewMD5(uuid.NameSpaceURL, []byte(p.DocID)).String()
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"book_id": p.BookID,
				"doc_id":  p.DocID,
				"title":   p.Title,
				"isbn_13": p.ISBN13,
			}),
		})
	}

	_, err := q.Client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         structs,
	})
	return err
}

func (q *QdrantStore) Query(ctx context.Context, collection string, vector []float32, limit uint64) ([]Hit, error) {
	res, err := q.Client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(res))
	for _, p := range res {
		hit := Hit{Score: p.Score}
		if v, ok := p.Payload["book_id"]; ok {
			hit.BookID = v.GetIntegerValue()
		}
		if v, ok := p.Payload["doc_id"]; ok {
			hit.DocID = v.GetStringValue()
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (q *QdrantStore) Close() error {
	return q.Client.Close()
}
