package vectorstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/calyx-labs/ragline/internal/domain"
)

// pointToHash flattens a point into the hash fields stored per document.
// The vector is serialized as little-endian float32 in the __vector field
// so it can be indexed in place.
func pointToHash(p domain.Point) map[string]string {
	return map[string]string{
		domain.FieldTitle:       p.Title,
		domain.FieldDescription: p.Description,
		domain.FieldGroupID:     strconv.FormatUint(p.GroupID, 10),
		"__vector":              string(vectorToBytes(p.Vector)),
	}
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func collectionToHash(c domain.Collection) map[string]string {
	return map[string]string{
		"name":       c.Name,
		"dimension":  strconv.Itoa(c.Dimension),
		"isolation":  strconv.FormatBool(c.Isolation),
		"created_at": strconv.FormatInt(c.CreatedAt, 10),
	}
}

func collectionFromHash(m map[string]string) (domain.Collection, error) {
	dim, err := strconv.Atoi(m["dimension"])
	if err != nil {
		return domain.Collection{}, fmt.Errorf("parse collection dimension %q: %w", m["dimension"], err)
	}
	isolation, _ := strconv.ParseBool(m["isolation"])
	createdAt, _ := strconv.ParseInt(m["created_at"], 10, 64)
	return domain.Collection{
		Name:      m["name"],
		Dimension: dim,
		Isolation: isolation,
		CreatedAt: createdAt,
	}, nil
}
