package report

import (
	"fmt"
	"strconv"

	"github.com/percystore/smartsales/internal/orders"
)

// Receipt lays out an order as a printable receipt.
func Receipt(o orders.Order, currency string) Document {
	d := Document{
		Title:    "Comprobante " + o.TransactionNumber,
		Subtitle: fmt.Sprintf("Fecha %s · Estado %s", o.CreatedAt.Format("2006-01-02 15:04"), o.Status),
		Columns:  []string{"Producto", "Cant.", "P. unitario", "Total"},
	}
	if o.TransactionStatus == orders.TxVoid {
		d.Subtitle += " · ANULADO"
	}
	if o.CustomerName != "" {
		d.Subtitle += " · Cliente " + o.CustomerName
		if o.CustomerDocument != "" {
			d.Subtitle += " (" + o.CustomerDocument + ")"
		}
	}
	for _, it := range o.Items {
		name := it.Name
		if it.WarrantyMonths > 0 {
			name += fmt.Sprintf(" (garantía %d meses)", it.WarrantyMonths)
		}
		d.Rows = append(d.Rows, []string{
			name, strconv.Itoa(it.Qty), it.UnitPrice.StringFixed(2), it.LineTotal.StringFixed(2),
		})
	}
	d.Rows = append(d.Rows,
		[]string{"Subtotal", "", "", o.Subtotal.StringFixed(2)},
		[]string{"Descuento", "", "", o.DiscountTotal.StringFixed(2)},
		[]string{"Impuestos", "", "", o.TaxTotal.StringFixed(2)},
		[]string{"Envío", "", "", o.ShippingTotal.StringFixed(2)},
		[]string{"TOTAL " + currency, "", "", o.GrandTotal.StringFixed(2)},
	)
	return d
}
