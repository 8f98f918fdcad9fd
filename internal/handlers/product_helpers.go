package handlers

import (
	"context"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"boutique/internal/models"
)

// normalizeProductDocument coerces older product documents (category
// arrays, numeric strings, missing flags) into the current shape.
func normalizeProductDocument(raw bson.M) (models.Product, error) {
	switch typed := raw["category"].(type) {
	case string:
	case bson.A:
		raw["category"] = firstString([]interface{}(typed))
	case []interface{}:
		raw["category"] = firstString(typed)
	case []string:
		if len(typed) > 0 {
			raw["category"] = typed[0]
		} else {
			raw["category"] = ""
		}
	default:
		raw["category"] = ""
	}

	raw["price"] = toFloat(raw["price"])
	if val, ok := raw["salePrice"]; ok {
		raw["salePrice"] = toFloat(val)
	}
	raw["stock"] = toInt(raw["stock"])

	if val, ok := raw["isActive"]; ok {
		switch typed := val.(type) {
		case string:
			raw["isActive"] = typed != "false"
		case bool:
		default:
			raw["isActive"] = true
		}
	} else {
		raw["isActive"] = true
	}

	data, err := bson.Marshal(raw)
	if err != nil {
		return models.Product{}, err
	}

	var p models.Product
	if err := bson.Unmarshal(data, &p); err != nil {
		return models.Product{}, err
	}

	p.Decorate()
	return p, nil
}

func firstString(values []interface{}) string {
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func toFloat(val interface{}) float64 {
	switch typed := val.(type) {
	case float64:
		return typed
	case int32:
		return float64(typed)
	case int64:
		return float64(typed)
	case int:
		return float64(typed)
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(typed.String(), 64)
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func toInt(val interface{}) int {
	switch typed := val.(type) {
	case int32:
		return int(typed)
	case int64:
		return int(typed)
	case int:
		return typed
	case float64:
		return int(typed)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func decodeProducts(ctx context.Context, cursor *mongo.Cursor) ([]models.Product, error) {
	products := make([]models.Product, 0)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			return nil, err
		}

		products = append(products, product)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return products, nil
}
