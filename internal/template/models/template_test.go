package models

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"correspondence/pkg/domain"
	dErrors "correspondence/pkg/domain-errors"
)

func TestNewTemplate(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tpl, err := NewTemplate(FieldsFromValues(url.Values{
		"name":        {"  Surat   Undangan  "},
		"description": {" Format undangan rapat "},
	}), 1, now)
	require.NoError(t, err)
	assert.Equal(t, "Surat Undangan", tpl.Name)
	assert.Equal(t, "Format undangan rapat", tpl.Description)
	require.NotNil(t, tpl.InsertedBy)
	assert.Equal(t, domain.UserID(1), *tpl.InsertedBy)
	assert.Equal(t, now, tpl.InsertedAt)

	_, err = NewTemplate(Fields{Name: " "}, 1, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewTemplate(Fields{Name: strings.Repeat("n", 201)}, 1, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewTemplate(Fields{Name: "ok", Description: strings.Repeat("d", 1001)}, 1, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}
