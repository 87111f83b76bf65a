package telemetry

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"golang.org/x/crypto/sha3"

	"github.com/lixenwraith/vi-highway/car"
	"github.com/lixenwraith/vi-highway/highway"
)

// carWireSize is the fixed encoding width of one car in the digest stream
const carWireSize = 4 + 8*8 + 1

// Digest hashes the full ring state in bucket order
// Two runs that agree bit-for-bit on every car in every bucket produce the same digest
func Digest(r *highway.Ring) [32]byte {
	h := sha3.New256()
	var hdr [16]byte
	var buf [carWireSize]byte

	for i := 0; i < r.Len(); i++ {
		cars := r.Bucket(i).Cars()
		binary.LittleEndian.PutUint64(hdr[0:], uint64(i))
		binary.LittleEndian.PutUint64(hdr[8:], uint64(len(cars)))
		h.Write(hdr[:])
		for j := range cars {
			putCar(buf[:], &cars[j])
			h.Write(buf[:])
		}
	}

	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}

// DigestHex returns Digest as a hex string
func DigestHex(r *highway.Ring) string {
	sum := Digest(r)
	return hex.EncodeToString(sum[:])
}

func putCar(b []byte, c *car.Car) {
	binary.LittleEndian.PutUint32(b[0:], c.ID)
	binary.LittleEndian.PutUint64(b[4:], math.Float64bits(c.Pos))
	binary.LittleEndian.PutUint64(b[12:], math.Float64bits(c.Speed))
	binary.LittleEndian.PutUint64(b[20:], math.Float64bits(c.DesiredSpeed))
	binary.LittleEndian.PutUint64(b[28:], math.Float64bits(c.OvertakeSpeed))
	binary.LittleEndian.PutUint64(b[36:], math.Float64bits(c.LaneOffset))
	binary.LittleEndian.PutUint64(b[44:], math.Float64bits(c.OvertakeTimer))
	binary.LittleEndian.PutUint64(b[52:], math.Float64bits(c.BlockedTimer))
	binary.LittleEndian.PutUint64(b[60:], uint64(int64(c.Lane)))
	b[68] = byte(c.State)
}
