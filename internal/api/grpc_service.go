package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-churn/internal/models"
	"github.com/miradorstack/mirador-churn/internal/services"
	"github.com/miradorstack/mirador-churn/internal/utils"
)

// ChurnPredictorServiceName is the fully qualified gRPC service name.
const ChurnPredictorServiceName = "churn.v1.ChurnPredictor"

const (
	predictMethod  = "/" + ChurnPredictorServiceName + "/Predict"
	describeMethod = "/" + ChurnPredictorServiceName + "/Describe"
)

// ChurnPredictorServer is the server API for churn.v1.ChurnPredictor. Requests
// and responses are google.protobuf.Struct documents with the same field names
// as the JSON API.
type ChurnPredictorServer interface {
	Predict(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Describe(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterChurnPredictorServer attaches srv to a gRPC registrar.
func RegisterChurnPredictorServer(s grpc.ServiceRegistrar, srv ChurnPredictorServer) {
	s.RegisterService(&churnPredictorServiceDesc, srv)
}

var churnPredictorServiceDesc = grpc.ServiceDesc{
	ServiceName: ChurnPredictorServiceName,
	HandlerType: (*ChurnPredictorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
		{MethodName: "Describe", Handler: describeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "churn/v1/churn.proto",
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChurnPredictorServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: predictMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChurnPredictorServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func describeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChurnPredictorServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: describeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChurnPredictorServer).Describe(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// PredictorService adapts a Predictor to the gRPC service.
type PredictorService struct {
	logger    *slog.Logger
	predictor Predictor
}

// NewPredictorService constructs the gRPC facade.
func NewPredictorService(logger *slog.Logger, predictor Predictor) *PredictorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictorService{logger: logger, predictor: predictor}
}

// Predict scores one customer document.
func (s *PredictorService) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	pred, err := s.predictor.PredictFields(ctx, req.AsMap())
	if err != nil {
		return nil, s.toStatus(err)
	}
	return ToProtoPrediction(pred)
}

// Describe reports the loaded model.
func (s *PredictorService) Describe(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	info, err := s.predictor.ModelInfo()
	if err != nil {
		return nil, s.toStatus(err)
	}
	return ToProtoModelInfo(info)
}

func (s *PredictorService) toStatus(err error) error {
	switch utils.KindOf(err) {
	case utils.KindInvalidInput:
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return status.Error(codes.InvalidArgument, verr.Error())
		}
		return status.Error(codes.InvalidArgument, err.Error())
	case utils.KindUnavailable:
		return status.Error(codes.Unavailable, services.ModelUnavailableMessage)
	default:
		s.logger.Error("grpc request failed", slog.Any("error", err))
		return status.Error(codes.Internal, "An error occurred during prediction: "+rootCause(err).Error())
	}
}

// ToProtoPrediction converts a prediction into its Struct representation.
func ToProtoPrediction(p models.Prediction) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"prediction":  p.Label,
		"probability": p.Probability,
		"model_id":    p.ModelID,
	})
}

// ToProtoModelInfo converts model metadata into its Struct representation.
func ToProtoModelInfo(info models.ModelInfo) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"model_id":           info.ModelID,
		"created_at":         info.CreatedAt.UTC().Format(time.RFC3339),
		"numerical_fields":   stringsToAny(info.NumericalFields),
		"categorical_fields": stringsToAny(info.CategoricalFields),
		"feature_count":      info.FeatureCount,
	})
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
