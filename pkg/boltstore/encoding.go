package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

func init() {
	gob.Register(gamedb.Object{})
	gob.Register(gamedb.Attribute{})
	gob.Register(gamedb.AttrDef{})
}

// encodeObject serializes an Object to bytes using gob.
func encodeObject(obj *gamedb.Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeObject deserializes bytes back into an Object.
func decodeObject(data []byte) (*gamedb.Object, error) {
	var obj gamedb.Object
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// encodeAttrDef serializes an AttrDef to bytes using gob.
func encodeAttrDef(def *gamedb.AttrDef) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(def); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeAttrDef deserializes bytes back into an AttrDef.
func decodeAttrDef(data []byte) (*gamedb.AttrDef, error) {
	var def gamedb.AttrDef
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&def); err != nil {
		return nil, err
	}
	return &def, nil
}
