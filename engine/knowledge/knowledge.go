// Package knowledge keeps a case base of past resolved breakdowns in Qdrant
// and retrieves the ones most similar to a new report, so mechanics see how
// comparable interventions were handled.
package knowledge

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/sosmeca/sosmeca-server/engine/domain"
	"github.com/sosmeca/sosmeca-server/pkg/ollama"
)

// Case is one resolved intervention worth remembering.
type Case struct {
	ID          string          `json:"id"`
	Symptom     string          `json:"symptom"`
	SubCategory string          `json:"sub_category"`
	Severity    domain.Severity `json:"severity"`
	Description string          `json:"description"`
	Resolution  string          `json:"resolution"`
}

// Match is a retrieved case with its similarity score.
type Match struct {
	Case  Case    `json:"case"`
	Score float32 `json:"score"`
}

// pointsAPI is the slice of qdrant's points service the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the slice of qdrant's collections service the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Store owns all Qdrant operations for the case base.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	embed       ollama.Embedder
}

// New connects to Qdrant at the given gRPC address.
func New(addr, collection string, embed ollama.Embedder) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("knowledge: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		embed:       embed,
	}, nil
}

// NewWithClients wires explicit clients, for tests.
func NewWithClients(points pointsAPI, collections collectionsAPI, collection string, embed ollama.Embedder) *Store {
	return &Store{points: points, collections: collections, collection: collection, embed: embed}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (s *Store) EnsureCollection(ctx context.Context, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("knowledge: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("knowledge: create collection %s: %w", s.collection, err)
	}
	return nil
}

// caseText is the text that gets embedded for a case.
func caseText(c Case) string {
	return fmt.Sprintf("%s / %s: %s", c.Symptom, c.SubCategory, c.Description)
}

// Index stores one case in the collection.
func (s *Store) Index(ctx context.Context, c Case) error {
	vec, err := s.embed.Embed(ctx, caseText(c))
	if err != nil {
		return fmt.Errorf("knowledge: embed case %s: %w", c.ID, err)
	}

	wait := true
	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: c.ID}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}},
			},
			Payload: map[string]*pb.Value{
				"symptom":      {Kind: &pb.Value_StringValue{StringValue: c.Symptom}},
				"sub_category": {Kind: &pb.Value_StringValue{StringValue: c.SubCategory}},
				"severity":     {Kind: &pb.Value_StringValue{StringValue: string(c.Severity)}},
				"description":  {Kind: &pb.Value_StringValue{StringValue: c.Description}},
				"resolution":   {Kind: &pb.Value_StringValue{StringValue: c.Resolution}},
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("knowledge: upsert case %s: %w", c.ID, err)
	}
	return nil
}

// Similar retrieves the topK cases closest to the given breakdown
// description, optionally restricted to one symptom.
func (s *Store) Similar(ctx context.Context, description, symptom string, topK int) ([]Match, error) {
	vec, err := s.embed.Embed(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}

	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if symptom != "" {
		req.Filter = &pb.Filter{Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   "symptom",
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: symptom}},
				},
			},
		}}}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}

	matches := make([]Match, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		payload := r.GetPayload()
		matches[i] = Match{
			Score: r.GetScore(),
			Case: Case{
				ID:          r.GetId().GetUuid(),
				Symptom:     payload["symptom"].GetStringValue(),
				SubCategory: payload["sub_category"].GetStringValue(),
				Severity:    domain.Severity(payload["severity"].GetStringValue()),
				Description: payload["description"].GetStringValue(),
				Resolution:  payload["resolution"].GetStringValue(),
			},
		}
	}
	return matches, nil
}
