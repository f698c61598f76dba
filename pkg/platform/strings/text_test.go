package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollapseSpaces(t *testing.T) {
	assert.Equal(t, "Juan Derry", CollapseSpaces("  Juan \t  Derry\n"))
	assert.Equal(t, "", CollapseSpaces("   "))
}

func TestAnyContainsFold(t *testing.T) {
	for _, term := range []string{"annual", "REPORT", "nual"} {
		assert.True(t, AnyContainsFold(term, "001/X/2025", "Annual Report"), term)
	}
	assert.False(t, AnyContainsFold("budget", "Annual Report"))
	assert.True(t, AnyContainsFold("  report\n", "Annual Report"))
	assert.False(t, AnyContainsFold(" annual  report", "Annual Report"), "inner spacing is kept")
	assert.True(t, AnyContainsFold("  ", "Annual Report"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "surat_tugas_final_pdf", Slug("Surat Tugas (final).pdf"))
	assert.Equal(t, "budi", Slug("  Budi "))
	assert.Equal(t, "", Slug("!!!"))
}
