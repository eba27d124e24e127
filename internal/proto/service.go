package proto

// Service is one gRPC-style service with its RPC methods.
type Service struct {
	Name      string
	TypeIndex int32
	Methods   []ServiceMethod
}

func NewService(name string, typeIndex int32) Service {
	return Service{Name: name, TypeIndex: typeIndex}
}

func (s *Service) AddMethod(m ServiceMethod) {
	s.Methods = append(s.Methods, m)
}

// GetUsedTypes returns the type indices of every method's request/response
// message, for import resolution.
func (s *Service) GetUsedTypes() []int32 {
	var used []int32
	for _, m := range s.Methods {
		if m.InputTypeIndex != nil {
			used = append(used, *m.InputTypeIndex)
		}
		if m.OutputTypeIndex != nil {
			used = append(used, *m.OutputTypeIndex)
		}
	}
	return used
}

// ServiceMethod is one RPC: a request/response type pair plus the
// client/server streaming flags decoded from the gRPC client's return type.
type ServiceMethod struct {
	Name             string
	InputNamespace   *string
	InputType        string
	InputTypeIndex   *int32
	OutputNamespace  *string
	OutputType       string
	OutputTypeIndex  *int32
	ClientStreaming  bool
	ServerStreaming  bool
}

func NewServiceMethod(
	name string,
	inputNamespace *string,
	inputType string,
	inputTypeIndex *int32,
	outputNamespace *string,
	outputType string,
	outputTypeIndex *int32,
	clientStreaming, serverStreaming bool,
) ServiceMethod {
	return ServiceMethod{
		Name:            name,
		InputNamespace:  inputNamespace,
		InputType:       inputType,
		InputTypeIndex:  inputTypeIndex,
		OutputNamespace: outputNamespace,
		OutputType:      outputType,
		OutputTypeIndex: outputTypeIndex,
		ClientStreaming: clientStreaming,
		ServerStreaming: serverStreaming,
	}
}
