package core

// eventIdDomainTag is the domain-separation literal prefixed to every
// event id. It must not change without bumping event_version globally:
// every previously computed id would stop matching.
const eventIdDomainTag = "ev1|"

// ComputeEventId derives the content-addressed identifier for an event:
//
//	id = Keccak256( "ev1|" ++ name ++ "|" ++ canonical_bytes(payload) )
//
// name is the event's kebab-case kind (e.g. "state-signed"); payload is the
// full event value (including event_version and timestamp_ms), rendered
// through CanonicalBytes.
func ComputeEventId(kind EventKind, payload interface{}) (Hash, error) {
	canon, err := CanonicalBytes(payload)
	if err != nil {
		return Hash{}, err
	}
	prefix := []byte(eventIdDomainTag + string(kind) + "|")
	return Keccak256(prefix, canon), nil
}
