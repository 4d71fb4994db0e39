package handlers

import (
	"github.com/docshield/document-redactor/internal/service/redaction"
	"github.com/docshield/document-redactor/pkg/logger"
)

type Handlers struct {
	Redaction *RedactionHandler
}

func NewHandlers(
	redactionService redaction.Service,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Redaction: NewRedactionHandler(redactionService, logger),
	}
}
