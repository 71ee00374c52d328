package source

// DefaultParams returns representative parameters for a built-in
// operation, used by the scheduler when no caller-supplied parameters are
// available. Unknown operations get an empty map; sources treat
// parameters as opaque.
func DefaultParams(sourceName, op string) map[string]any {
	if byOp, ok := defaultParams[sourceName]; ok {
		if params, ok := byOp[op]; ok {
			out := make(map[string]any, len(params))
			for k, v := range params {
				out[k] = v
			}
			return out
		}
	}
	return map[string]any{}
}

var defaultParams = map[string]map[string]map[string]any{
	"UserService": {
		"authenticate_user": {"username": "test_user", "password": "password123"},
		"get_user_profile":  {"user_id": "user123"},
		"update_user_data":  {"user_id": "user123", "updates": map[string]any{"email": "new@example.com"}},
	},
	"PaymentService": {
		"process_payment": {"amount": 100.0, "payment_method": "credit_card"},
		"calculate_tax":   {"amount": 100.0, "tax_rate": 0.1},
		"validate_card":   {"card_number": "4111111111111111", "expiry": "12/25"},
	},
	"DataProcessingService": {
		"process_batch":     {"batch_id": "batch123", "items": []string{"item1", "item2"}},
		"transform_data":    {"data": map[string]any{"key": "value"}, "format": "json"},
		"aggregate_results": {"results": []int{1, 2, 3, 4, 5}},
	},
	"AuthService": {
		"generate_token":       {"user_id": "user123", "scopes": []string{"read", "write"}},
		"validate_permissions": {"token": "test_token", "required_permission": "admin"},
		"refresh_session":      {"session_id": "session123"},
	},
}
