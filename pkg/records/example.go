// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package records

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the tf.train.Example protos (tensorflow/core/example/{example,feature}.proto).
const (
	exampleFeaturesField = 1 // Example.features
	featuresFeatureField = 1 // Features.feature: map<string, Feature>
	mapKeyField          = 1
	mapValueField        = 2
	featureBytesList     = 1 // Feature.bytes_list
	featureFloatList     = 2 // Feature.float_list
	featureInt64List     = 3 // Feature.int64_list
	listValueField       = 1 // {Bytes,Float,Int64}List.value
)

// walkFields calls fn for each field of the serialized message b. For length-delimited fields, data
// holds the payload; for all other wire types it holds the encoded value.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, data []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		var data []byte
		if typ == protowire.BytesType {
			data, n = protowire.ConsumeBytes(b)
		} else {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n >= 0 {
				data = b[:n]
			}
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		if err := fn(num, typ, data); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// DecodeExample parses a serialized tf.train.Example.
func DecodeExample(b []byte) (Record, error) {
	rec := make(Record)
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, features []byte) error {
		if num != exampleFeaturesField || typ != protowire.BytesType {
			return nil
		}
		return walkFields(features, func(num protowire.Number, typ protowire.Type, entry []byte) error {
			if num != featuresFeatureField || typ != protowire.BytesType {
				return nil
			}
			name, value, err := decodeFeatureEntry(entry)
			if err != nil {
				return err
			}
			rec[name] = value
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode tf.train.Example")
	}
	return rec, nil
}

func decodeFeatureEntry(entry []byte) (name string, value Value, err error) {
	err = walkFields(entry, func(num protowire.Number, typ protowire.Type, data []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case mapKeyField:
			name = string(data)
		case mapValueField:
			var err error
			value, err = decodeFeature(data)
			return err
		}
		return nil
	})
	if err == nil && name == "" {
		err = errors.New("feature with empty name")
	}
	if err != nil {
		err = errors.WithMessagef(err, "feature %q", name)
	}
	return
}

func decodeFeature(b []byte) (value Value, err error) {
	err = walkFields(b, func(num protowire.Number, typ protowire.Type, list []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case featureBytesList:
			value = Value{Kind: KindBytes}
			return walkFields(list, func(num protowire.Number, typ protowire.Type, data []byte) error {
				if num == listValueField && typ == protowire.BytesType {
					value.Bytes = append(value.Bytes, append([]byte(nil), data...))
				}
				return nil
			})
		case featureFloatList:
			value = Value{Kind: KindFloat}
			return walkFields(list, func(num protowire.Number, typ protowire.Type, data []byte) error {
				if num != listValueField {
					return nil
				}
				// Packed (the default) or one value per field.
				for len(data) > 0 {
					bits, n := protowire.ConsumeFixed32(data)
					if n < 0 {
						return protowire.ParseError(n)
					}
					value.Floats = append(value.Floats, math.Float32frombits(bits))
					data = data[n:]
				}
				return nil
			})
		case featureInt64List:
			value = Value{Kind: KindInt64}
			return walkFields(list, func(num protowire.Number, typ protowire.Type, data []byte) error {
				if num != listValueField {
					return nil
				}
				for len(data) > 0 {
					v, n := protowire.ConsumeVarint(data)
					if n < 0 {
						return protowire.ParseError(n)
					}
					value.Int64s = append(value.Int64s, int64(v))
					data = data[n:]
				}
				return nil
			})
		}
		return nil
	})
	return
}

// EncodeExample serializes rec as a tf.train.Example. Features are written in name order, so the
// encoding is deterministic.
func EncodeExample(rec Record) []byte {
	var features []byte
	for _, name := range rec.Names() {
		var entry []byte
		entry = protowire.AppendTag(entry, mapKeyField, protowire.BytesType)
		entry = protowire.AppendString(entry, name)
		entry = protowire.AppendTag(entry, mapValueField, protowire.BytesType)
		entry = protowire.AppendBytes(entry, encodeFeature(rec[name]))
		features = protowire.AppendTag(features, featuresFeatureField, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}
	var example []byte
	example = protowire.AppendTag(example, exampleFeaturesField, protowire.BytesType)
	return protowire.AppendBytes(example, features)
}

func encodeFeature(value Value) []byte {
	var list []byte
	var field protowire.Number
	switch value.Kind {
	case KindBytes:
		field = featureBytesList
		for _, b := range value.Bytes {
			list = protowire.AppendTag(list, listValueField, protowire.BytesType)
			list = protowire.AppendBytes(list, b)
		}
	case KindFloat:
		field = featureFloatList
		var packed []byte
		for _, f := range value.Floats {
			packed = protowire.AppendFixed32(packed, math.Float32bits(f))
		}
		list = protowire.AppendTag(list, listValueField, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	case KindInt64:
		field = featureInt64List
		var packed []byte
		for _, v := range value.Int64s {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		list = protowire.AppendTag(list, listValueField, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	default:
		// An empty Feature message: no kind set.
		return nil
	}
	var feature []byte
	feature = protowire.AppendTag(feature, field, protowire.BytesType)
	return protowire.AppendBytes(feature, list)
}
