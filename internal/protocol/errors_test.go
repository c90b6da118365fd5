package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeNames(t *testing.T) {
	cases := map[Code]string{
		CodeOK:                  "OK",
		CodePlayerNotFound:      "PlayerNotExist",
		CodePlayerExists:        "PlayerAlreadyExist",
		CodeInsufficientBalance: "NotGoldBalance",
		CodeRanchFull:           "MaxElfCount",
		CodeIneligible:          "InvalidPurchaseCondition",
		CodeMaxSlots:            "MaxElfSlot",
		CodeInternal:            "Internal",
	}
	for c, want := range cases {
		if got := c.String(); got != want {
			t.Fatalf("code %d: got %q want %q", c, got, want)
		}
	}
	if Code(77).String() != "Unknown" {
		t.Fatalf("unexpected name for unknown code")
	}
}

func TestCodeNumberingIsStable(t *testing.T) {
	if CodePlayerNotFound != 1 || CodeMaxSlots != 12 || CodeBadCommand != 16 {
		t.Fatalf("code numbering drifted: %d %d %d", CodePlayerNotFound, CodeMaxSlots, CodeBadCommand)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != CodeOK {
		t.Fatalf("nil: got %v", got)
	}
	wrapped := fmt.Errorf("buy: %w", Errorf(CodeInsufficientBalance, "need %d", 100))
	if got := CodeOf(wrapped); got != CodeInsufficientBalance {
		t.Fatalf("wrapped: got %v", got)
	}
	if got := CodeOf(errors.New("disk full")); got != CodeInternal {
		t.Fatalf("plain error: got %v", got)
	}
	if !errors.Is(wrapped, Fail(CodeInsufficientBalance)) {
		t.Fatalf("errors.Is should match on code")
	}
	if errors.Is(wrapped, Fail(CodeRanchFull)) {
		t.Fatalf("errors.Is matched a different code")
	}
}
