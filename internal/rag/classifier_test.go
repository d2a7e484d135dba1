package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFactualPhrases(t *testing.T) {
	queries := []string{
		"Что такое испытательный срок?",
		"What is the vacation policy?",
		"ما هو نظام العمل؟",
		"Где находится офис в Москве?",
		"Who is my onboarding buddy at the company?",
	}
	for _, q := range queries {
		assert.Equal(t, ComplexitySimple, Classify(q), "query: %s", q)
	}
}

func TestClassifyElaborationPhrases(t *testing.T) {
	queries := []string{
		"Объясни процесс оформления отпуска",
		"Explain the performance review cycle",
		"Compare remote and office work policies",
		"اشرح سياسة الإجازات",
	}
	for _, q := range queries {
		assert.Equal(t, ComplexityComplex, Classify(q), "query: %s", q)
	}
}

func TestClassifyShortQueryIsSimple(t *testing.T) {
	assert.Equal(t, ComplexitySimple, Classify("Office wifi password?"))
	assert.Equal(t, ComplexitySimple, Classify("Пароль от вайфая"))
}

func TestClassifyLongQueryIsComplex(t *testing.T) {
	q := "I want to understand the entire process of requesting parental leave including payroll implications"
	assert.Equal(t, ComplexityComplex, Classify(q))
}

func TestClassifyMultipleQuestionMarksIsComplex(t *testing.T) {
	assert.Equal(t, ComplexityComplex, Classify("Really? Are you sure? Why?"))
}

func TestClassifyFactualPhraseWinsOverElaboration(t *testing.T) {
	// A factual marker takes precedence even when an elaboration marker
	// is also present.
	assert.Equal(t, ComplexitySimple, Classify("Что такое ДМС и объясни как его оформить"))
}

func TestClassifyCaseInsensitive(t *testing.T) {
	assert.Equal(t, ComplexitySimple, Classify("WHAT IS the dress code at headquarters, please?"))
}
