package metrics

import (
	"reflect"
	"testing"
)

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, ClassError},
		{101, ClassError},
		{200, Class2xx},
		{204, Class2xx},
		{301, Class3xx},
		{404, Class4xx},
		{499, Class4xx},
		{500, Class5xx},
		{599, Class5xx},
		{600, ClassError},
	}
	for _, tt := range tests {
		if got := StatusClass(tt.code); got != tt.want {
			t.Errorf("StatusClass(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestFlattenStatusCodes(t *testing.T) {
	tests := []struct {
		name  string
		codes map[string]int64
		want  []StatusBucket
	}{
		{
			name:  "nil codes",
			codes: nil,
			want:  nil,
		},
		{
			name:  "single code",
			codes: map[string]int64{"200": 10},
			want:  []StatusBucket{{Code: "200", Count: 10}},
		},
		{
			name:  "sorted by count desc",
			codes: map[string]int64{"200": 10, "500": 5, "404": 20},
			want: []StatusBucket{
				{Code: "404", Count: 20},
				{Code: "200", Count: 10},
				{Code: "500", Count: 5},
			},
		},
		{
			name:  "ties broken numerically",
			codes: map[string]int64{"503": 3, "99": 3, "200": 3},
			want: []StatusBucket{
				{Code: "99", Count: 3},
				{Code: "200", Count: 3},
				{Code: "503", Count: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlattenStatusCodes(tt.codes)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlattenStatusCodes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFriendlyErrorName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "Unknown error"},
		{"*runner.HTTPError", "HTTP error response"},
		{"*net.OpError", "Network error"},
		{"*url.Error", "Request URL error"},
		{"*errors.errorString", "Error String (errors)"},
		{"main.customFailure", "Custom Failure"},
	}
	for _, tt := range tests {
		if got := FriendlyErrorName(tt.in); got != tt.want {
			t.Errorf("FriendlyErrorName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
