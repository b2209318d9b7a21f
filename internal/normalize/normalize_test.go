package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Empty(t *testing.T) {
	assert.Equal(t, "", Key(""))
	assert.Equal(t, "", Key("   "))
	assert.Equal(t, "", Key("\t\n"))
}

func TestKey_Uppercase(t *testing.T) {
	assert.Equal(t, "METRO HEXA", Key("Metro Hexa"))
}

func TestKey_StripPunctuation(t *testing.T) {
	assert.Equal(t, "ST XAVIER SCHOOL ROAD RAIPUR", Key("St. Xavier School Road, Raipur"))
	assert.Equal(t, "MAHAVIR ASSOCIATES", Key("Maha-vir Associates"))
	assert.Equal(t, "DEVS MEADOWS", Key("Dev's Meadows"))
}

func TestKey_CollapseWhitespace(t *testing.T) {
	assert.Equal(t, "METRO HEXA", Key("  Metro   Hexa  "))
	assert.Equal(t, "METRO HEXA", Key("Metro\tHexa"))
	assert.Equal(t, "METRO HEXA", Key("Metro Hexa"))
}

func TestKey_Deterministic(t *testing.T) {
	in := " Metro-Hexa,  Phase II. "
	assert.Equal(t, Key(in), Key(in))
}

func TestKey_PreservesContent(t *testing.T) {
	assert.Equal(t, "SUNSHINE HEIGHTS PHASE 2", Key("SUNSHINE HEIGHTS PHASE 2"))
}

func TestIdentityKey_Normalizes(t *testing.T) {
	got := IdentityKey("Metro Hexa", " St. Xavier School Road,  Raipur ", "MAHAVIR ASSOCIATES")
	assert.Equal(t, "METRO HEXA", got.Name)
	assert.Equal(t, "ST XAVIER SCHOOL ROAD RAIPUR", got.Address)
	assert.Equal(t, "MAHAVIR ASSOCIATES", got.Promoter)
}

func TestIdentityKey_EmptyComponents(t *testing.T) {
	got := IdentityKey("Metro Hexa", "", "")
	assert.Equal(t, "METRO HEXA", got.Name)
	assert.Equal(t, "", got.Address)
	assert.Equal(t, "", got.Promoter)
}

func TestIdentityKey_EquivalentVariants(t *testing.T) {
	// Variants of the same triple scraped on different days must collide.
	a := IdentityKey("Metro Hexa", "St Xavier School Road Raipur", "Mahavir Associates")
	b := IdentityKey("METRO  HEXA", "St. Xavier School Road, Raipur", "MAHAVIR ASSOCIATES")
	assert.Equal(t, a, b)
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "CG:PCGRERA250518000784", CacheKey("CG", "PCGRERA250518000784"))
}

func TestCacheKey_NormalizesParts(t *testing.T) {
	assert.Equal(t, "CG:PCGRERA250518000784", CacheKey(" cg ", "PCG-RERA-2505-1800-0784"))
}
