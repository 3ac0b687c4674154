package metrics

import "testing"

func TestFriendlyErrorName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "Unknown error"},
		{"*url.Error", "Request URL error"},
		{"context.deadlineExceededError", "Context deadline exceeded"},
		{"*errors.errorString", "Generic error"},
		{"*net.OpError", "Network error"},
		{"*net.AddrError", "Network error"},
		{"*report.DeliveryError", "Delivery Error (report)"},
		{"main.myHTTPFailure", "My HTTP Failure"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := FriendlyErrorName(tt.in); got != tt.want {
				t.Errorf("FriendlyErrorName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
