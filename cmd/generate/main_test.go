package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/timmy/csvgen/internal/domain"
)

func TestParseFields(t *testing.T) {
	cols := parseFields("id:id, mail:email ,status,")
	assert.Equal(t, []domain.Column{
		{Name: "id", Kind: "id", Order: 0},
		{Name: "mail", Kind: "email", Order: 1},
		{Name: "status", Kind: "status", Order: 2},
	}, cols)
}
