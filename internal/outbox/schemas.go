package outbox

const proofAnchoredSchema = `{
  "type": "object",
  "title": "ProofAnchored",
  "properties": {
    "record_id": {"type": "integer"},
    "subject_id": {"type": "integer"},
    "action": {"type": "string"},
    "asset": {"type": "string"},
    "quantity": {"type": "string"},
    "fingerprint": {"type": "string", "pattern": "^0x[0-9a-f]{64}$"},
    "confirmation_id": {"type": "string"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["record_id", "subject_id", "action", "asset", "quantity", "fingerprint", "confirmation_id", "created_at"],
  "additionalProperties": false
}`
