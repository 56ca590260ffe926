package infrastructure

import (
	"atelier/internal/service/order/domain"
)

// toDomainOrder 将数据库模型转换为领域模型。
func toDomainOrder(m *OrderModel) *domain.Order {
	if m == nil {
		return nil
	}
	o := &domain.Order{
		ID:                  m.ID,
		OrderNumber:         m.OrderNumber,
		UserID:              m.UserID,
		Status:              domain.Status(m.Status),
		PaymentMethod:       domain.PaymentMethod(m.PaymentMethod),
		PaymentStatus:       domain.PaymentStatus(m.PaymentStatus),
		LockedUntil:         m.LockedUntil,
		LoyaltyPointsEarned: m.LoyaltyPointsEarned,
		TotalAmount:         m.TotalAmount,
		Subtotal:            m.Subtotal,
		DiscountAmount:      m.DiscountAmount,
		LoyaltyDiscount:     m.LoyaltyDiscount,
		ShippingFee:         m.ShippingFee,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
	for _, it := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ProductName: it.ProductName,
			SKU:         it.SKU,
			Price:       it.Price,
			Quantity:    it.Quantity,
		})
	}
	for i := range m.History {
		o.History = append(o.History, *toDomainHistory(&m.History[i]))
	}
	return o
}

// toDomainHistory 将历史记录模型转换为领域模型。
func toDomainHistory(m *StatusHistoryModel) *domain.StatusHistory {
	h := &domain.StatusHistory{
		ID:        m.ID,
		OrderID:   m.OrderID,
		ToStatus:  domain.Status(m.ToStatus),
		Note:      m.Note,
		ActorRole: domain.Role(m.ActorRole),
		CreatedAt: m.CreatedAt,
	}
	if m.FromStatus != nil {
		from := domain.Status(*m.FromStatus)
		h.FromStatus = &from
	}
	return h
}

// fromDomainOrder 将领域模型转换为数据库模型（用于插入）。
func fromDomainOrder(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:                  o.ID,
		OrderNumber:         o.OrderNumber,
		UserID:              o.UserID,
		Status:              string(o.Status),
		PaymentMethod:       string(o.PaymentMethod),
		PaymentStatus:       string(o.PaymentStatus),
		LockedUntil:         o.LockedUntil,
		LoyaltyPointsEarned: o.LoyaltyPointsEarned,
		TotalAmount:         o.TotalAmount,
		Subtotal:            o.Subtotal,
		DiscountAmount:      o.DiscountAmount,
		LoyaltyDiscount:     o.LoyaltyDiscount,
		ShippingFee:         o.ShippingFee,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
	for _, it := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			OrderID:     o.ID,
			ProductName: it.ProductName,
			SKU:         it.SKU,
			Price:       it.Price,
			Quantity:    it.Quantity,
		})
	}
	for _, h := range o.History {
		hm := StatusHistoryModel{
			OrderID:   o.ID,
			ToStatus:  string(h.ToStatus),
			Note:      h.Note,
			ActorRole: string(h.ActorRole),
			CreatedAt: h.CreatedAt,
		}
		if h.FromStatus != nil {
			from := string(*h.FromStatus)
			hm.FromStatus = &from
		}
		m.History = append(m.History, hm)
	}
	return m
}
