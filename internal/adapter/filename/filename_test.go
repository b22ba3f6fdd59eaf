package filename

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/detection-feed/internal/adapter/metrics"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		want      time.Time
		expectErr error
	}{
		{
			name:     "Documented example",
			filename: "ch1_Fall_Detection_2024-05-01_13-45-02.jpg",
			want:     time.Date(2024, 5, 1, 13, 45, 2, 0, time.UTC),
		},
		{
			name:     "Single category word",
			filename: "ch12_Intrusion_2023-12-31_23-59-59.png",
			want:     time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			name:     "Arbitrary suffix after the date",
			filename: "ch3_Fire_Smoke_Alarm_2024-02-29_00-00-00_frame17.jpeg",
			want:     time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "Missing channel token",
			filename:  "Fall_Detection_2024-05-01_13-45-02.jpg",
			expectErr: ErrNoMatch,
		},
		{
			name:      "Uploaded file name",
			filename:  "1714571102000-photo.jpg",
			expectErr: ErrNoMatch,
		},
		{
			name:      "Digits in category",
			filename:  "ch1_Cam2_2024-05-01_13-45-02.jpg",
			expectErr: ErrNoMatch,
		},
		{
			name:      "Empty name",
			filename:  "",
			expectErr: ErrNoMatch,
		},
		{
			name:      "Impossible day",
			filename:  "ch1_Fall_Detection_2024-02-30_13-45-02.jpg",
			expectErr: ErrInvalidDate,
		},
		{
			name:      "Impossible hour",
			filename:  "ch1_Fall_Detection_2024-05-01_25-00-00.jpg",
			expectErr: ErrInvalidDate,
		},
		{
			name:      "Impossible month",
			filename:  "ch1_Fall_Detection_2024-13-01_10-00-00.jpg",
			expectErr: ErrInvalidDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.filename, time.UTC)
			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Fatalf("ParseTimestamp() error = %v, want %v", err, tt.expectErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp() unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseTimestamp_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	got, err := ParseTimestamp("ch1_Fall_Detection_2024-05-01_13-45-02.jpg", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 5, 1, 11, 45, 2, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got.UTC(), want)
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		filename string
		want     string
		ok       bool
	}{
		{"ch1_Fall_Detection_2024-05-01_13-45-02.jpg", "Fall Detection", true},
		{"ch7_Intrusion_2024-05-01_13-45-02.jpg", "Intrusion", true},
		{"random.jpg", "", false},
	}
	for _, tt := range tests {
		got, ok := Category(tt.filename)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Category(%q) = %q, %v; want %q, %v", tt.filename, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParser_Timestamp(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	fixed := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewParser(time.UTC, logger, m).WithClock(func() time.Time { return fixed })

	t.Run("Match returns embedded time", func(t *testing.T) {
		got := p.Timestamp("ch1_Fall_Detection_2024-05-01_13-45-02.jpg")
		if !got.Equal(time.Date(2024, 5, 1, 13, 45, 2, 0, time.UTC)) {
			t.Errorf("got %s", got)
		}
	})

	t.Run("No match falls back to clock", func(t *testing.T) {
		got := p.Timestamp("snapshot.jpg")
		if !got.Equal(fixed) {
			t.Errorf("got %s, want fallback %s", got, fixed)
		}
		if v := testutil.ToFloat64(m.TimestampFallbacks.WithLabelValues("no_match")); v != 1 {
			t.Errorf("no_match fallbacks = %v, want 1", v)
		}
	})

	t.Run("Invalid date falls back to clock", func(t *testing.T) {
		got := p.Timestamp("ch1_Fall_Detection_2024-02-30_13-45-02.jpg")
		if !got.Equal(fixed) {
			t.Errorf("got %s, want fallback %s", got, fixed)
		}
		if v := testutil.ToFloat64(m.TimestampFallbacks.WithLabelValues("invalid_date")); v != 1 {
			t.Errorf("invalid_date fallbacks = %v, want 1", v)
		}
	})

	t.Run("Fallback with real clock is never zero", func(t *testing.T) {
		real := NewParser(nil, logger, nil)
		before := time.Now().Add(-time.Second)
		got := real.Timestamp("not-a-detection.png")
		if got.IsZero() || got.Before(before) {
			t.Errorf("fallback timestamp %s is not current", got)
		}
	})
}
