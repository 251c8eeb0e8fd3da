package vectorindex

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"rag-qa-go/internal/config"
	"rag-qa-go/internal/model"
	"rag-qa-go/pkg/log"
)

// Qdrant 通过 gRPC 访问 Qdrant 集合。
type Qdrant struct {
	conn        *grpc.ClientConn
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
	collection  string
}

// qdrantTarget 解析 gRPC 地址。URL 优先，形如 http://host:6334 或 https://host:6334。
func qdrantTarget(cfg config.QdrantConfig) (string, bool, error) {
	host, port, useTLS := cfg.Host, cfg.Port, cfg.UseTLS
	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		if err != nil || u.Hostname() == "" {
			return "", false, fmt.Errorf("invalid qdrant url %q", cfg.URL)
		}
		host = u.Hostname()
		if p := u.Port(); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				return "", false, fmt.Errorf("invalid qdrant port %q", p)
			}
			port = n
		}
		useTLS = useTLS || u.Scheme == "https"
	}
	if port == 0 {
		port = 6334
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), useTLS, nil
}

// NewQdrant 建立到 Qdrant 的 gRPC 连接。API key 通过每次调用的 metadata 传递。
func NewQdrant(cfg config.QdrantConfig, collection string) (*Qdrant, error) {
	target, useTLS, err := qdrantTarget(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrIndex, err)
	}

	creds := insecure.NewCredentials()
	if useTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.APIKey != "" {
		apiKey := cfg.APIKey
		opts = append(opts, grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
			ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
			return invoker(ctx, method, req, reply, cc, callOpts...)
		}))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to qdrant at %s: %w", model.ErrIndex, target, err)
	}
	log.Infof("[VectorIndex] 已连接 Qdrant: %s, collection: %s", target, collection)
	return &Qdrant{
		conn:        conn,
		collections: qdrant.NewCollectionsClient(conn),
		points:      qdrant.NewPointsClient(conn),
		collection:  collection,
	}, nil
}

func (q *Qdrant) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

func (q *Qdrant) InspectSchema(ctx context.Context, dim int) (SchemaState, error) {
	exists, err := q.collections.CollectionExists(ctx, &qdrant.CollectionExistsRequest{CollectionName: q.collection})
	if err != nil {
		return SchemaAbsent, fmt.Errorf("%w: check collection exists: %w", model.ErrIndex, err)
	}
	if !exists.GetResult().GetExists() {
		return SchemaAbsent, nil
	}

	info, err := q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.collection})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return SchemaAbsent, nil
		}
		return SchemaAbsent, fmt.Errorf("%w: get collection info: %w", model.ErrIndex, err)
	}

	// 只接受单个未命名向量且维度一致的集合；命名向量布局无法写入未命名向量，视为不兼容
	params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil || params.GetSize() != uint64(dim) {
		return SchemaIncompatible, nil
	}
	return SchemaCompatible, nil
}

func (q *Qdrant) EnsureSchema(ctx context.Context, dim int) (SchemaAction, error) {
	return ensureSchema(ctx, q, q.collection, dim)
}

func (q *Qdrant) createCollection(ctx context.Context, dim int) error {
	_, err := q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		if alreadyExists(err) {
			return fmt.Errorf("%w: create collection %s: %w: %w", model.ErrIndex, q.collection, errCollectionExists, err)
		}
		return fmt.Errorf("%w: create collection %s: %w", model.ErrIndex, q.collection, err)
	}
	return nil
}

// alreadyExists 识别集合已存在的错误。Qdrant 对此返回 InvalidArgument 加错误描述，较新版本可能返回 AlreadyExists。
func alreadyExists(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.AlreadyExists:
		return true
	case codes.InvalidArgument:
		return strings.Contains(st.Message(), "already exists")
	}
	return false
}

func (q *Qdrant) dropCollection(ctx context.Context) error {
	_, err := q.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: q.collection})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("%w: delete collection %s: %w", model.ErrIndex, q.collection, err)
	}
	return nil
}

func (q *Qdrant) Upsert(ctx context.Context, documentID uint, vectors [][]float32, payloads []model.Payload) error {
	if err := validateUpsert(vectors, payloads); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for i, vec := range vectors {
		points = append(points, &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: PointID(documentID, i)},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: vec},
				},
			},
			Payload: toQdrantPayload(payloads[i]),
		})
	}

	wait := true
	_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return fmt.Errorf("%w: upsert rejected: %w", model.ErrValidation, err)
		}
		return fmt.Errorf("%w: upsert %d points: %w", model.ErrIndex, len(points), err)
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int) ([]model.SearchHit, error) {
	if err := validateSearch(vector, topK); err != nil {
		return nil, err
	}
	resp, err := q.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		// 集合不存在时按空结果处理
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: search: %w", model.ErrIndex, err)
	}

	hits := make([]model.SearchHit, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		hits = append(hits, model.SearchHit{
			PointID: pointIDString(p.GetId()),
			Score:   float64(p.GetScore()),
			Payload: fromQdrantPayload(p.GetPayload()),
		})
	}
	return hits, nil
}

func (q *Qdrant) DeleteDocument(ctx context.Context, documentID uint) error {
	wait := true
	_, err := q.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{{
						ConditionOneOf: &qdrant.Condition_Field{
							Field: &qdrant.FieldCondition{
								Key: "document_id",
								Match: &qdrant.Match{
									MatchValue: &qdrant.Match_Integer{Integer: int64(documentID)},
								},
							},
						},
					}},
				},
			},
		},
	})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("%w: delete points of document %d: %w", model.ErrIndex, documentID, err)
	}
	return nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func toQdrantValue(v any) *qdrant.Value {
	switch t := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: t}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: t}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(t)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: t}}
	case uint:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(t)}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(t)}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: t}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprint(t)}}
	}
}

func toQdrantPayload(p model.Payload) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(p))
	for k, v := range p {
		out[k] = toQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_ListValue:
		items := make([]any, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			items = append(items, fromQdrantValue(item))
		}
		return items
	case *qdrant.Value_StructValue:
		return map[string]any(fromQdrantPayload(k.StructValue.GetFields()))
	}
	return nil
}

func fromQdrantPayload(m map[string]*qdrant.Value) model.Payload {
	out := make(model.Payload, len(m))
	for k, v := range m {
		out[k] = fromQdrantValue(v)
	}
	return out
}
