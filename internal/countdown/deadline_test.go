package countdown

import (
	"testing"
	"time"
)

func TestParseRealizationDate(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		want    time.Time
		wantErr bool
	}{
		{
			name: "valid date maps to end of day",
			date: "2026-12-31",
			want: time.Date(2026, 12, 31, 23, 59, 59, 0, time.Local),
		},
		{
			name: "leap day",
			date: "2028-02-29",
			want: time.Date(2028, 2, 29, 23, 59, 59, 0, time.Local),
		},
		{
			name:    "US-style date rejected",
			date:    "13/31/2024",
			wantErr: true,
		},
		{
			name:    "missing zero padding rejected",
			date:    "2026-1-2",
			wantErr: true,
		},
		{
			name:    "empty string rejected",
			date:    "",
			wantErr: true,
		},
		{
			name:    "date with time-of-day rejected",
			date:    "2026-12-31T10:00:00",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRealizationDate(tt.date)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRealizationDate(%q) succeeded, want error", tt.date)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRealizationDate(%q): %v", tt.date, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ParseRealizationDate(%q) = %v, want %v", tt.date, got, tt.want)
			}
		})
	}
}

func TestBreakdownFromMillis(t *testing.T) {
	tests := []struct {
		ms   int64
		want Breakdown
	}{
		{90061000, Breakdown{Days: 1, Hours: 1, Minutes: 1, Seconds: 1}},
		{1000, Breakdown{Seconds: 1}},
		{86400000, Breakdown{Days: 1}},
		{359999000, Breakdown{Days: 4, Hours: 3, Minutes: 59, Seconds: 59}},
	}

	for _, tt := range tests {
		if got := breakdownFromMillis(tt.ms); got != tt.want {
			t.Errorf("breakdownFromMillis(%d) = %+v, want %+v", tt.ms, got, tt.want)
		}
	}
}
