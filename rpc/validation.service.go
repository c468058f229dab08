package rpc

import (
	"fmt"
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type ValidationServiceConfig struct {
	AvailableProviders []string
	MaxDepth           int
}

type ValidationService struct {
	config *ValidationServiceConfig
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	return &ValidationService{
		config: config,
	}
}

func (s *ValidationService) IsSupportedProvider(provider string) bool {
	for _, p := range s.config.AvailableProviders {
		if p == provider {
			return true
		}
	}
	return false
}

// Depth reads max_depth from the request. It must be a whole number in
// [1, MaxDepth].
func (s *ValidationService) Depth(v *structpb.Value) (int, error) {
	if v == nil {
		return 0, status.Error(codes.InvalidArgument, "max_depth is required")
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "max_depth must be a number")
	}
	depth := n.NumberValue
	if depth != math.Trunc(depth) || depth < 1 || depth > float64(s.config.MaxDepth) {
		return 0, status.Error(codes.InvalidArgument, fmt.Sprintf("max_depth must be an integer in [1, %d]", s.config.MaxDepth))
	}
	return int(depth), nil
}
