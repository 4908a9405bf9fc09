package outbox

const activityRecordedSchema = `{
  "type": "object",
  "title": "ActivityRecorded",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "savings_target_id": {"type": "string"},
    "activity_type": {"type": "string", "enum": ["deposit", "withdrawal", "target_created", "target_completed"]},
    "title": {"type": "string"},
    "amount": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["activity_id", "user_id", "activity_type", "title", "amount", "occurred_at", "version"],
  "additionalProperties": false
}`
