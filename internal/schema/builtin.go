package schema

// TechCompany is the built-in default schema: a fictional technology company
// hidden in a long narrative text.
func TechCompany() Schema {
	return Schema{
		Name: "TechCompany",
		Fields: []Field{
			{Name: "name", Type: TypeString, Description: "Name of the technology company."},
			{Name: "product", Type: TypeString, Description: "The main product or service the company offers."},
			{Name: "founded_year", Type: TypeInt, Description: "Year the company was founded."},
			{Name: "headquarters", Type: TypeString, Description: "City where the company is headquartered."},
			{Name: "revenue_millions", Type: TypeFloat, Description: "Annual revenue in millions of dollars."},
			{Name: "employee_count", Type: TypeInt, Description: "Number of employees."},
			{Name: "public", Type: TypeBool, Description: "Whether the company is publicly traded."},
			{Name: "technologies", Type: TypeStringList, Description: "Key technologies the company works with."},
		},
	}
}

// Builtin returns all built-in schemas.
func Builtin() []Schema {
	return []Schema{TechCompany()}
}
