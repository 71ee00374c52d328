package source

import "github.com/getfaultd/faultd/pkg/fault"

// Default failure probabilities of the reference deployment.
const (
	defaultUserProb     = 0.08
	defaultPaymentProb  = 0.06
	defaultPipelineProb = 0.07
	defaultAuthProb     = 0.05
)

// NewUserService builds the identity source. Its failures look like a
// broken login path: denied authentications, mangled profile reads and
// writes against a dead session store.
func NewUserService(opts ...Option) *Service {
	ops := []opSpec{
		{
			name:  "authenticate_user",
			kinds: []fault.Kind{fault.KindAuthDenied, fault.KindTimeout},
			messages: map[fault.Kind]string{
				fault.KindAuthDenied: "credential check rejected a known-good password",
				fault.KindTimeout:    "identity provider did not answer within deadline",
			},
		},
		{
			name:  "get_user_profile",
			kinds: []fault.Kind{fault.KindDataCorruption, fault.KindUnavailable},
			messages: map[fault.Kind]string{
				fault.KindDataCorruption: "profile document is missing required fields",
				fault.KindUnavailable:    "profile store connection refused",
			},
		},
		{
			name:  "update_user_data",
			kinds: []fault.Kind{fault.KindDependency, fault.KindConflict},
			messages: map[fault.Kind]string{
				fault.KindDependency: "session store handle is nil",
				fault.KindConflict:   "concurrent update lost the write race",
			},
		},
	}
	return newService("UserService", defaultUserProb, ops, opts...)
}

// NewPaymentService builds the payments source: arithmetic gone wrong in
// tax calculation, validation rejects, stalled gateways.
func NewPaymentService(opts ...Option) *Service {
	ops := []opSpec{
		{
			name:  "process_payment",
			kinds: []fault.Kind{fault.KindTimeout, fault.KindDependency},
			messages: map[fault.Kind]string{
				fault.KindTimeout:    "card gateway stalled past the processing deadline",
				fault.KindDependency: "ledger service returned a malformed response",
			},
		},
		{
			name:  "calculate_tax",
			kinds: []fault.Kind{fault.KindInternal, fault.KindValidation},
			messages: map[fault.Kind]string{
				fault.KindInternal:   "tax rate table produced a division by zero",
				fault.KindValidation: "jurisdiction code not present in rate table",
			},
		},
		{
			name:  "validate_card",
			kinds: []fault.Kind{fault.KindValidation, fault.KindRateLimited},
			messages: map[fault.Kind]string{
				fault.KindValidation:  "card number failed checksum validation",
				fault.KindRateLimited: "card validation quota exhausted",
			},
		},
	}
	return newService("PaymentService", defaultPaymentProb, ops, opts...)
}

// NewDataProcessingService builds the pipeline source: missing batch
// inputs, memory blowups in transforms, corrupt aggregates.
func NewDataProcessingService(opts ...Option) *Service {
	ops := []opSpec{
		{
			name:  "process_batch",
			kinds: []fault.Kind{fault.KindUnavailable, fault.KindDataCorruption},
			messages: map[fault.Kind]string{
				fault.KindUnavailable:    "batch input file not found on staging volume",
				fault.KindDataCorruption: "batch manifest checksum mismatch",
			},
		},
		{
			name:  "transform_data",
			kinds: []fault.Kind{fault.KindResourceLimit, fault.KindInternal},
			messages: map[fault.Kind]string{
				fault.KindResourceLimit: "transform exceeded its memory budget",
				fault.KindInternal:      "unexpected record shape in transform stage",
			},
		},
		{
			name:  "aggregate_results",
			kinds: []fault.Kind{fault.KindDataCorruption, fault.KindInternal},
			messages: map[fault.Kind]string{
				fault.KindDataCorruption: "aggregate window references evicted partitions",
				fault.KindInternal:       "index out of range combining shard results",
			},
		},
	}
	return newService("DataProcessingService", defaultPipelineProb, ops, opts...)
}

// NewAuthService builds the authorization source: token mint failures,
// permission-check recursion, dropped session-store connections.
func NewAuthService(opts ...Option) *Service {
	ops := []opSpec{
		{
			name:  "generate_token",
			kinds: []fault.Kind{fault.KindDependency, fault.KindInternal},
			messages: map[fault.Kind]string{
				fault.KindDependency: "signing-key provider module failed to load",
				fault.KindInternal:   "token serializer produced an empty payload",
			},
		},
		{
			name:  "validate_permissions",
			kinds: []fault.Kind{fault.KindResourceLimit, fault.KindAuthDenied},
			messages: map[fault.Kind]string{
				fault.KindResourceLimit: "permission graph walk exceeded recursion depth",
				fault.KindAuthDenied:    "required permission missing from token scopes",
			},
		},
		{
			name:  "refresh_session",
			kinds: []fault.Kind{fault.KindUnavailable, fault.KindTimeout},
			messages: map[fault.Kind]string{
				fault.KindUnavailable: "session store connection reset by peer",
				fault.KindTimeout:     "session refresh round-trip exceeded deadline",
			},
		},
	}
	return newService("AuthService", defaultAuthProb, ops, opts...)
}

// Builtin returns a registry pre-populated with the four reference
// sources. Options apply to every source; per-source tuning goes through
// the config layer.
func Builtin(opts ...Option) *fault.Registry {
	reg := fault.NewRegistry()
	_ = reg.Register(NewUserService(opts...))
	_ = reg.Register(NewPaymentService(opts...))
	_ = reg.Register(NewDataProcessingService(opts...))
	_ = reg.Register(NewAuthService(opts...))
	return reg
}

// New constructs a built-in source by type name. Unknown types return nil.
func New(typeName string, opts ...Option) *Service {
	switch typeName {
	case "user", "identity", "UserService":
		return NewUserService(opts...)
	case "payment", "payments", "PaymentService":
		return NewPaymentService(opts...)
	case "pipeline", "data", "DataProcessingService":
		return NewDataProcessingService(opts...)
	case "auth", "authorization", "AuthService":
		return NewAuthService(opts...)
	default:
		return nil
	}
}
