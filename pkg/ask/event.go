package ask

import "github.com/devsecrin/askstream/pkg/types"

// Kind tags the variant carried by an Event.
type Kind int

const (
	KindContext     Kind = iota + 1 // retrieved context and model metadata
	KindAnswerChunk                 // fragment to append to the running answer
	KindError                       // server-reported failure
)

func (k Kind) String() string {
	switch k {
	case KindContext:
		return "context"
	case KindAnswerChunk:
		return "answer_chunk"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one normalized stream event. Only the fields of its Kind are set.
// End of stream is never an Event; Stream.Next reports it as io.EOF.
type Event struct {
	Kind Kind

	// KindContext
	Items    []types.ContextItem
	Metadata Metadata

	// KindAnswerChunk
	Text string

	// KindError
	Message string
}

// Metadata describes how the backend produced an answer. Every field is optional.
type Metadata struct {
	Model     string   `json:"model,omitempty"`
	Provider  string   `json:"provider,omitempty"`
	NodeTypes []string `json:"node_types,omitempty"`
}
