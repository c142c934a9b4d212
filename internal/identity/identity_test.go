package identity

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"+92 300-1234567", "923001234567"},
		{"0092 300 1234567", "923001234567"},
		{"(0300) 1234567", "3001234567"},
		{"923001234567", "923001234567"},
		{"", ""},
		{"abc", ""},
	}

	for _, tt := range tests {
		if got := NormalizePhone(tt.input); got != tt.expected {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Buyer@Example.COM ", "buyer@example.com"},
		{"buyer@example.com", "buyer@example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeEmail(tt.input); got != tt.expected {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestCustomerKey(t *testing.T) {
	const salt = "test-salt"

	t.Run("PhonePreferredOverEmail", func(t *testing.T) {
		phoneOnly, err := CustomerKey(salt, "+92 300 1234567", "")
		if err != nil {
			t.Fatalf("CustomerKey failed: %v", err)
		}
		both, err := CustomerKey(salt, "+92 300 1234567", "buyer@example.com")
		if err != nil {
			t.Fatalf("CustomerKey failed: %v", err)
		}
		if phoneOnly != both {
			t.Error("expected phone to win when both identifiers present")
		}
	})

	t.Run("EquivalentPhonesCollapse", func(t *testing.T) {
		a, _ := CustomerKey(salt, "+92 300-1234567", "")
		b, _ := CustomerKey(salt, "0092 3001234567", "")
		if a != b {
			t.Errorf("equivalent phones produced different keys: %s vs %s", a, b)
		}
	})

	t.Run("EmailFallback", func(t *testing.T) {
		a, err := CustomerKey(salt, "", "Buyer@Example.com")
		if err != nil {
			t.Fatalf("CustomerKey failed: %v", err)
		}
		b, _ := CustomerKey(salt, "", "buyer@example.com")
		if a != b {
			t.Error("case-variant emails produced different keys")
		}
	})

	t.Run("PhoneAndEmailNamespacesDiffer", func(t *testing.T) {
		// The same raw string as phone vs email must not collide.
		p := Hash(salt, "phone:123")
		e := Hash(salt, "email:123")
		if p == e {
			t.Error("phone and email namespaces collided")
		}
	})

	t.Run("SaltChangesKey", func(t *testing.T) {
		a, _ := CustomerKey("salt-a", "", "buyer@example.com")
		b, _ := CustomerKey("salt-b", "", "buyer@example.com")
		if a == b {
			t.Error("different salts produced identical keys")
		}
	})

	t.Run("NoUsableIdentifier", func(t *testing.T) {
		if _, err := CustomerKey(salt, "", ""); err == nil {
			t.Error("expected error for empty identifiers")
		}
		if _, err := CustomerKey(salt, "abc", "   "); err == nil {
			t.Error("expected error for unusable identifiers")
		}
	})
}

func TestHashIsHex64(t *testing.T) {
	h := Hash("salt", "phone:923001234567")
	if len(h) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h))
	}
}
