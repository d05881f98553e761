package main

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
)

// catalog is the seed file layout:
//
//	{"categories":[...], "products":[...], "addresses":[...], "coupons":[...]}
//
// Products reference categories by id.
type catalog struct {
	Categories []product.Category
	Products   []product.Product
	Addresses  []address.Address
	Coupons    []coupon.Coupon
}

func decodeCatalog(data []byte) (*catalog, error) {
	var (
		c           catalog
		categoryIDs []string
	)
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "categories":
			return d.Arr(func(d *jx.Decoder) error {
				cat := product.Category{Listed: true}
				if err := decodeFields(d, categoryField(&cat)); err != nil {
					return err
				}
				c.Categories = append(c.Categories, cat)
				return nil
			})
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				var (
					p     product.Product
					catID string
				)
				if err := decodeFields(d, productField(&p, &catID)); err != nil {
					return err
				}
				c.Products = append(c.Products, p)
				categoryIDs = append(categoryIDs, catID)
				return nil
			})
		case "addresses":
			return d.Arr(func(d *jx.Decoder) error {
				var a address.Address
				if err := decodeFields(d, addressField(&a)); err != nil {
					return err
				}
				c.Addresses = append(c.Addresses, a)
				return nil
			})
		case "coupons":
			return d.Arr(func(d *jx.Decoder) error {
				cp := coupon.Coupon{Listed: true}
				if err := decodeFields(d, couponField(&cp)); err != nil {
					return err
				}
				cp.Code = coupon.NormalizeCode(cp.Code)
				c.Coupons = append(c.Coupons, cp)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}

	byID := make(map[string]*product.Category, len(c.Categories))
	for i := range c.Categories {
		byID[c.Categories[i].ID] = &c.Categories[i]
	}
	for i, catID := range categoryIDs {
		if catID == "" {
			continue
		}
		cat, ok := byID[catID]
		if !ok {
			return nil, errors.Errorf("product %s: unknown category %q", c.Products[i].ID, catID)
		}
		c.Products[i].Category = cat
	}
	return &c, nil
}

type fieldFunc func(d *jx.Decoder, key string) error

func decodeFields(d *jx.Decoder, fn fieldFunc) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	})
}

func decimalValue(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(string(n))
}

func stringsValue(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}

func categoryField(c *product.Category) fieldFunc {
	return func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "id":
			c.ID, err = d.Str()
		case "name":
			c.Name, err = d.Str()
		case "offer":
			c.Offer, err = decimalValue(d)
		case "listed":
			c.Listed, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	}
}

func productField(p *product.Product, categoryID *string) fieldFunc {
	return func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "images":
			p.Images, err = stringsValue(d)
		case "price":
			p.Price, err = decimalValue(d)
		case "discount":
			p.Discount, err = decimalValue(d)
		case "stock":
			p.Stock, err = d.Int()
		case "blocked":
			p.Blocked, err = d.Bool()
		case "category":
			*categoryID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}
}

func addressField(a *address.Address) fieldFunc {
	fields := map[string]*string{
		"id":       &a.ID,
		"userId":   &a.UserID,
		"name":     &a.Name,
		"phone":    &a.Phone,
		"line1":    &a.Line1,
		"line2":    &a.Line2,
		"city":     &a.City,
		"state":    &a.State,
		"pincode":  &a.Pincode,
		"landmark": &a.Landmark,
	}
	return func(d *jx.Decoder, key string) (err error) {
		dst, ok := fields[key]
		if !ok {
			return d.Skip()
		}
		*dst, err = d.Str()
		return err
	}
}

func couponField(c *coupon.Coupon) fieldFunc {
	return func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "code":
			c.Code, err = d.Str()
		case "offer":
			c.Offer, err = decimalValue(d)
		case "minimumPrice":
			c.MinimumPrice, err = decimalValue(d)
		case "maxDiscount":
			c.MaxDiscount, err = decimalValue(d)
		case "expiresAt":
			var s string
			if s, err = d.Str(); err == nil {
				c.ExpiresAt, err = time.Parse(time.RFC3339, s)
			}
		case "description":
			c.Description, err = d.Str()
		case "listed":
			c.Listed, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	}
}
