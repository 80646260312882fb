package serde

type stringDeserialiser struct{}

// String returns a Deserialiser that interprets the value bytes as a string.
func String() Deserialiser[string] {
	return stringDeserialiser{}
}

func (s stringDeserialiser) Deserialise(_ string, data []byte) (string, error) {
	return string(data), nil
}

type bytesDeserialiser struct{}

// Bytes returns a pass-through Deserialiser.
func Bytes() Deserialiser[[]byte] {
	return bytesDeserialiser{}
}

func (s bytesDeserialiser) Deserialise(_ string, data []byte) ([]byte, error) {
	return data, nil
}
