package render

import (
	"time"

	"golang.org/x/text/message"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
)

// tagContext carries everything an extractor may read for one render.
type tagContext struct {
	target  *domain.Target
	now     time.Time
	loc     *time.Location
	printer *message.Printer
}

type extractor func(c *tagContext) string

var (
	customerName      extractor = func(c *tagContext) string { return orMissing(c.target.CustomerName) }
	customerFirstName extractor = func(c *tagContext) string { return firstName(c.target.CustomerName) }
	customerEmail     extractor = func(c *tagContext) string { return orMissing(c.target.CustomerEmail) }
	customerPhone     extractor = func(c *tagContext) string { return orMissing(c.target.RecipientPhone()) }
	customerDocument  extractor = func(c *tagContext) string { return orMissing(c.target.CustomerDocument) }
	customerCompany   extractor = func(c *tagContext) string { return orMissing(c.target.CustomerCompany) }

	chargeCode        extractor = func(c *tagContext) string { return orMissing(c.target.ChargeID) }
	chargeAmount      extractor = func(c *tagContext) string { return formatCurrency(c.printer, c.target.Amount) }
	chargeDueDate     extractor = func(c *tagContext) string { return formatDate(c.target.DueDate) }
	chargeDueDateLong extractor = func(c *tagContext) string { return formatDateWithWeekday(c.target.DueDate) }
	chargeDescription extractor = func(c *tagContext) string { return orMissing(c.target.Description) }
	chargeStatus      extractor = func(c *tagContext) string { return orMissing(c.target.Status) }
	chargeLink        extractor = func(c *tagContext) string { return orMissing(c.target.PaymentLink) }
	chargeBarcode     extractor = func(c *tagContext) string { return orMissing(c.target.Barcode) }
	chargePix         extractor = func(c *tagContext) string { return orMissing(c.target.PixKey) }
	chargeDaysUntil   extractor = func(c *tagContext) string { return daysUntil(c.target.DueDate, c.now, c.loc) }
	chargeDaysPast    extractor = func(c *tagContext) string { return daysPast(c.target.DueDate, c.now, c.loc) }
)

// dottedTags serves the "{grupo.campo}" syntax. Keys are lower case.
var dottedTags = map[string]extractor{
	"cliente.nome":          customerName,
	"cliente.primeiro_nome": customerFirstName,
	"cliente.email":         customerEmail,
	"cliente.telefone":      customerPhone,
	"cliente.cpf_cnpj":      customerDocument,
	"cliente.cpf":           customerDocument,
	"cliente.empresa":       customerCompany,
	"cliente.company":       customerCompany,

	"cobranca.codigo":               chargeCode,
	"cobranca.valor":                chargeAmount,
	"cobranca.vencimento":           chargeDueDate,
	"cobranca.data_vencimento":      chargeDueDate,
	"cobranca.datavencimento":       chargeDueDate,
	"cobranca.vencimento_completo":  chargeDueDateLong,
	"cobranca.descricao":            chargeDescription,
	"cobranca.descrição":            chargeDescription,
	"cobranca.status":               chargeStatus,
	"cobranca.link":                 chargeLink,
	"cobranca.link_pagamento":       chargeLink,
	"cobranca.linkpagamento":        chargeLink,
	"cobranca.codigo_barras":        chargeBarcode,
	"cobranca.pix":                  chargePix,
	"cobranca.dias_ate_vencimento":  chargeDaysUntil,
	"cobranca.dias_apos_vencimento": chargeDaysPast,
	"cobranca.dias_atraso":          chargeDaysPast,
}

// legacyTags serves the "{{campo}}" syntax kept for older templates.
var legacyTags = map[string]extractor{
	"nome":                 customerName,
	"nome_cliente":         customerName,
	"primeiro_nome":        customerFirstName,
	"email":                customerEmail,
	"telefone":             customerPhone,
	"cpf_cnpj":             customerDocument,
	"empresa":              customerCompany,
	"valor":                chargeAmount,
	"vencimento":           chargeDueDate,
	"data_vencimento":      chargeDueDate,
	"descricao":            chargeDescription,
	"status":               chargeStatus,
	"link_pagamento":       chargeLink,
	"codigo_barras":        chargeBarcode,
	"pix":                  chargePix,
	"codigo_pix":           chargePix,
	"dias_ate_vencimento":  chargeDaysUntil,
	"dias_apos_vencimento": chargeDaysPast,
	"dias_atraso":          chargeDaysPast,
}
