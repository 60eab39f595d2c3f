package request

// TriggerBackup starts a manual backup attributed to the given operator.
type TriggerBackup struct {
	Initiator string `json:"initiator" validate:"required,min=1,max=64"`
}
