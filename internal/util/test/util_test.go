package main

import (
	"os"
	"testing"
	"time"

	constants "nombroludo/internal/constants"
	util "nombroludo/internal/util"
)

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		dur      time.Duration
		expected string
	}{
		{time.Second * 5, "5 seconds"},
		{time.Second * 65, "1 minute, 5 seconds"},
		{time.Second * 3665, "1 hour, 1 minute, 5 seconds"},
		{time.Second * 3600, "1 hour, 0 minutes, 0 seconds"},
		{time.Second * 60, "1 minute, 0 seconds"},
		{time.Second * 1, "1 second"},
	}
	for _, c := range cases {
		got := util.FormatUptime(c.dur)
		if got != c.expected {
			t.Errorf("FormatUptime(%v) = %q, want %q", c.dur, got, c.expected)
		}
	}
}

func TestPlural(t *testing.T) {
	if util.Plural(1) != "" {
		t.Errorf("Plural(1) = %q, want \"\"", util.Plural(1))
	}
	if util.Plural(2) != "s" {
		t.Errorf("Plural(2) = %q, want \"s\"", util.Plural(2))
	}
	if util.Plural(0) != "s" {
		t.Errorf("Plural(0) = %q, want \"s\"", util.Plural(0))
	}
}

func TestGetEnvDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "2s")
	defer os.Unsetenv("TEST_DURATION")
	if got := util.GetEnvDuration("TEST_DURATION", time.Second); got != 2*time.Second {
		t.Errorf("GetEnvDuration = %v, want 2s", got)
	}
	os.Setenv("TEST_DURATION", "notaduration")
	if got := util.GetEnvDuration("TEST_DURATION", 3*time.Second); got != 3*time.Second {
		t.Errorf("GetEnvDuration fallback = %v, want 3s", got)
	}
	os.Unsetenv("TEST_DURATION")
	if got := util.GetEnvDuration("TEST_DURATION", 4*time.Second); got != 4*time.Second {
		t.Errorf("GetEnvDuration fallback unset = %v, want 4s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	os.Setenv("TEST_INT", "42")
	defer os.Unsetenv("TEST_INT")
	if got := util.GetEnvInt("TEST_INT", 7); got != 42 {
		t.Errorf("GetEnvInt = %d, want 42", got)
	}
	os.Setenv("TEST_INT", "notanint")
	if got := util.GetEnvInt("TEST_INT", 8); got != 8 {
		t.Errorf("GetEnvInt fallback = %d, want 8", got)
	}
	os.Unsetenv("TEST_INT")
	if got := util.GetEnvInt("TEST_INT", 9); got != 9 {
		t.Errorf("GetEnvInt fallback unset = %d, want 9", got)
	}
}

func TestRandomAccessCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code := util.RandomAccessCode(constants.AccessCodeLength)
		if len(code) != constants.AccessCodeLength {
			t.Fatalf("code %q length = %d, want %d", code, len(code), constants.AccessCodeLength)
		}
		for _, c := range code {
			if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
				t.Errorf("code %q contains %q, want upper-case alphanumerics", code, c)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 2 {
		t.Error("50 draws produced a single code; generator looks stuck")
	}
}

func TestRandomFirstTurn(t *testing.T) {
	counts := map[int]int{}
	for i := 0; i < 200; i++ {
		turn := util.RandomFirstTurn()
		if turn != constants.PlayerOne && turn != constants.PlayerTwo {
			t.Fatalf("RandomFirstTurn = %d, want 1 or 2", turn)
		}
		counts[turn]++
	}
	if counts[constants.PlayerOne] == 0 || counts[constants.PlayerTwo] == 0 {
		t.Error("200 coin flips never produced one of the players")
	}
}
