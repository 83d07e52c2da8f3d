package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "crm/pkg/domain-errors"
)

// TestParseDossierID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseDossierID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseDossierID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseDossierID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseDossierID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseDossierID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, DossierID(valid), id)
	})
}

// TestParseID_SecurityInvariants validates that parsing rejects attack
// vectors at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE dossiers;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDossierID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseOrgID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    OrgID
		wantErr bool
	}{
		{"plain org id", "ORG-001", "ORG-001", false},
		{"trims surrounding whitespace", "  ORG-002 ", "ORG-002", false},
		{"underscore allowed", "acme_realty", "acme_realty", false},
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"path separator", "ORG/001", "", true},
		{"quote", "ORG'001", "", true},
		{"too long", strings.Repeat("a", 65), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOrgID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestTypeDistinction documents that dossier and event ids are distinct types
// even though both wrap a UUID.
func TestTypeDistinction(t *testing.T) {
	raw := uuid.New()
	dossierID := DossierID(raw)
	eventID := EventID(raw)

	// var _ DossierID = eventID // compile error
	assert.Equal(t, dossierID.String(), eventID.String())
	assert.False(t, dossierID.IsNil())
}

func TestDossierIDTextRoundTrip(t *testing.T) {
	id := NewDossierID()
	text, err := id.MarshalText()
	require.NoError(t, err)

	var parsed DossierID
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, id, parsed)

	assert.Error(t, parsed.UnmarshalText([]byte("nope")))
}
