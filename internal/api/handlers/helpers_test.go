package handlers_test

import "github.com/Fantasim/paysync/internal/models"

func seedFor(id string) models.Seed {
	return models.Seed{InvoiceID: id}
}
