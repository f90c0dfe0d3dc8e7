package knowledge

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf8"
)

// ChunkText divide un testo in porzioni di al più size caratteri con
// sovrapposizione overlap tra chunk consecutivi. I confini vengono
// riallineati all'ultimo spazio per non spezzare le parole.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunk := strings.TrimSpace(text[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		// Riallinea all'ultimo spazio nel chunk; senza spazi utili,
		// almeno all'inizio di una runa per non spezzare l'UTF-8
		cut := strings.LastIndexByte(text[start:end], ' ')
		if cut > size/2 {
			end = start + cut
		} else {
			for end > start && !utf8.RuneStart(text[end]) {
				end--
			}
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - overlap
		for next > start && !utf8.RuneStart(text[next]) {
			next--
		}
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// EncodeVector serializza un vettore float32 in little-endian
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector deserializza un vettore float32 little-endian
func DecodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
