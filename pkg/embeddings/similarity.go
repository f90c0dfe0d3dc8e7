package embeddings

import "math"

// CosineSimilarity calcola la similarità coseno tra due vettori.
// Restituisce un valore tra -1 e 1, dove 1 indica vettori identici.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, magnitudeA, magnitudeB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magnitudeA += float64(a[i]) * float64(a[i])
		magnitudeB += float64(b[i]) * float64(b[i])
	}

	if magnitudeA == 0 || magnitudeB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(magnitudeA) * math.Sqrt(magnitudeB))
}

// Normalize normalizza un vettore a lunghezza unitaria
func Normalize(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}

	if magnitude == 0 {
		return vec
	}

	magnitude = math.Sqrt(magnitude)
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}

// BatchCosineSimilarity calcola la similarità del query vector contro una lista
func BatchCosineSimilarity(query []float32, vectors [][]float32) []float64 {
	similarities := make([]float64, len(vectors))
	for i, v := range vectors {
		similarities[i] = CosineSimilarity(query, v)
	}
	return similarities
}
