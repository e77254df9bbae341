package hl7

// Built-in field tables. Positions are 1-based and count from the first field
// after the segment code, so MSH starts at the encoding characters.
var builtinTables = map[string][]string{
	"MSH": {
		"encoding_characters", "sending_application", "sending_facility",
		"receiving_application", "receiving_facility", "date_time_of_message",
		"security", "message_type", "message_control_id",
		"processing_id", "version_id", "sequence_number",
		"continuation_pointer", "accept_acknowledgment_type", "application_acknowledgment_type",
		"country_code", "character_set", "principal_language_of_message",
		"alternate_character_set_handling_scheme", "message_profile_identifier", "sending_responsible_organization",
		"receiving_responsible_organization", "sending_network_address", "receiving_network_address",
	},
	"EVN": {
		"event_type_code", "recorded_date_time", "date_time_planned_event",
		"event_reason_code", "operator_id", "event_occurred",
		"event_facility",
	},
	"PID": {
		"set_id", "patient_id", "patient_identifier_list",
		"alternate_patient_id", "patient_name", "mothers_maiden_name",
		"date_time_of_birth", "administrative_sex", "patient_alias",
		"race", "patient_address", "county_code",
		"phone_number_home", "phone_number_business", "primary_language",
		"marital_status", "religion", "patient_account_number",
		"ssn_number_patient", "drivers_license_number", "mothers_identifier",
		"ethnic_group", "birth_place", "multiple_birth_indicator",
		"birth_order", "citizenship", "veterans_military_status",
		"nationality", "patient_death_date_and_time", "patient_death_indicator",
		"identity_unknown_indicator", "identity_reliability_code", "last_update_date_time",
		"last_update_facility", "species_code", "breed_code",
		"strain", "production_class_code", "tribal_citizenship",
	},
	"NK1": {
		"set_id", "name", "relationship",
		"address", "phone_number", "business_phone_number",
		"contact_role", "start_date", "end_date",
		"next_of_kin_associated_parties_job_title", "next_of_kin_associated_parties_job_code_class", "next_of_kin_associated_parties_employee_number",
		"organization_name", "marital_status", "administrative_sex",
		"date_time_of_birth", "living_dependency", "ambulatory_status",
		"citizenship", "primary_language", "living_arrangement",
		"publicity_code", "protection_indicator", "student_indicator",
		"religion", "mothers_maiden_name", "nationality",
		"ethnic_group", "contact_reason", "contact_persons_name",
		"contact_persons_telephone_number", "contact_persons_address", "next_of_kin_associated_parties_identifiers",
		"job_status", "race", "handicap",
		"contact_person_social_security_number", "last_update_date_time", "last_update_facility",
		"tribal_citizenship", "patient_species_for_animal_patients", "patient_breed_for_animal_patients",
		"breed_sub_type",
	},
	"PV1": {
		"set_id", "patient_class", "assigned_patient_location",
		"admission_type", "preadmit_number", "prior_patient_location",
		"attending_doctor", "referring_doctor", "consulting_doctor",
		"hospital_service", "temporary_location", "preadmit_test_indicator",
		"re_admission_indicator", "admit_source", "ambulatory_status",
		"vip_indicator", "admitting_doctor", "patient_type",
		"visit_number", "financial_class", "charge_price_indicator",
		"courtesy_code", "credit_rating", "contract_code",
		"contract_effective_date", "contract_amount", "contract_period",
		"interest_code", "transfer_to_bad_debt_code", "transfer_to_bad_debt_date",
		"bad_debt_agency_code", "bad_debt_transfer_amount", "bad_debt_recovery_amount",
		"delete_account_indicator", "delete_account_date", "discharge_disposition",
		"discharged_to_location", "diet_type", "servicing_facility",
		"bed_status", "account_status", "pending_location",
		"prior_temporary_location", "admit_date_time", "discharge_date_time",
		"current_patient_balance", "total_charges", "total_adjustments",
		"total_payments", "alternate_visit_id", "visit_indicator",
		"other_healthcare_provider", "service_episode_description", "service_episode_identifier",
	},
	"AL1": {
		"set_id", "allergen_type_code", "allergen_code_mnemonic_description",
		"allergy_severity_code", "allergy_reaction_code", "identification_date",
	},
	"DG1": {
		"set_id", "diagnosis_coding_method", "diagnosis_code",
		"diagnosis_description", "diagnosis_date_time", "diagnosis_type",
		"major_diagnostic_category", "diagnostic_related_group", "drg_approval_indicator",
		"drg_grouper_review_code", "outlier_type", "outlier_days",
		"outlier_cost", "grouper_version_and_type", "diagnosis_priority",
		"diagnosing_clinician", "diagnosis_classification", "confidential_indicator",
		"attestation_date_time", "diagnosis_identifier", "diagnosis_action_code",
		"parent_diagnosis", "drg_ccl_value_code", "drg_grouping_usage",
		"drg_diagnosis_determination_status", "present_on_admission_indicator",
	},
	"PR1": {
		"set_id", "procedure_coding_method", "procedure_code",
		"procedure_description", "procedure_date_time", "procedure_functional_type",
		"procedure_minutes", "anesthesiologist", "anesthesia_code",
		"anesthesia_minutes", "surgeon", "procedure_practitioner",
		"consent_code", "procedure_priority", "associated_diagnosis_code",
		"procedure_code_modifier", "procedure_drg_type", "tissue_type_code",
	},
	"ORC": {
		"order_control", "placer_order_number", "filler_order_number",
		"placer_group_number", "order_status", "response_flag",
		"quantity_timing", "parent_order", "date_time_of_transaction",
		"entered_by", "verified_by", "ordering_provider",
		"enterers_location", "call_back_phone_number", "order_effective_date_time",
		"order_control_code_reason", "entering_organization", "entering_device",
		"action_by", "advanced_beneficiary_notice_code", "ordering_facility_name",
		"ordering_facility_address", "ordering_facility_phone_number", "ordering_provider_address",
		"order_status_modifier", "advanced_beneficiary_notice_override_reason", "fillers_expected_availability_date_time",
		"confidentiality_code", "order_type", "enterer_authorization_code",
	},
	"OBR": {
		"set_id", "placer_order_number", "filler_order_number",
		"universal_service_identifier", "priority", "requested_date_time",
		"observation_date_time", "observation_end_date_time", "collection_volume",
		"collector_identifier", "specimen_action_code", "danger_code",
		"relevant_clinical_info", "specimen_received_date_time", "specimen_source",
		"ordering_provider", "order_callback_phone_number", "placer_field1",
		"placer_field2", "filler_field1", "filler_field2",
		"results_rpt_status_chng_date_time", "charge_to_practice", "diagnostic_serv_sect_id",
		"result_status", "parent_result", "quantity_timing",
		"result_copies_to", "parent_number", "transportation_mode",
		"reason_for_study", "principal_result_interpreter", "assistant_result_interpreter",
		"technician", "transcriptionist", "scheduled_date_time",
		"number_of_sample_containers", "transport_logistics_of_collected_sample", "collectors_comment",
		"transport_arrangement_responsibility", "transport_arranged", "escort_required",
		"planned_patient_transport_comment", "procedure_code", "procedure_code_modifier",
		"placer_supplemental_service_information", "filler_supplemental_service_information", "medically_necessary_duplicate_procedure_reason",
		"result_handling", "parent_universal_service_identifier",
	},
	"OBX": {
		"set_id", "value_type", "observation_identifier",
		"observation_sub_id", "observation_value", "units",
		"reference_range", "abnormal_flags", "probability",
		"nature_of_abnormal_test", "observation_result_status", "effective_date_of_reference_range",
		"user_defined_access_checks", "date_time_of_the_observation", "producers_id",
		"responsible_observer", "observation_method", "equipment_instance_identifier",
		"date_time_of_the_analysis", "observation_site", "observation_instance_identifier",
		"mood_code", "performing_organization_name", "performing_organization_address",
		"performing_organization_medical_director", "patient_results_release_category", "root_cause",
		"local_process_control",
	},
	"NTE": {
		"set_id", "source_of_comment", "comment",
		"comment_type",
	},
	"MSA": {
		"acknowledgment_code", "message_control_id", "text_message",
		"expected_sequence_number", "delayed_acknowledgment_type", "error_condition",
	},
	"ERR": {
		"error_code_and_location", "error_location", "hl7_error_code",
		"severity", "application_error_code", "application_error_parameter",
		"diagnostic_information", "user_message", "inform_person_indicator",
		"override_type", "override_reason_code", "help_desk_contact_point",
	},
	"FT1": {
		"set_id", "transaction_id", "transaction_batch_id",
		"transaction_date", "transaction_posting_date", "transaction_type",
		"transaction_code", "transaction_description", "transaction_description_alt",
		"transaction_quantity", "transaction_amount_extended", "transaction_amount_unit",
		"department_code", "insurance_plan_id", "insurance_amount",
		"assigned_patient_location", "fee_schedule", "patient_type",
		"diagnosis_code", "performed_by_code", "ordered_by_code",
		"unit_cost", "filler_order_number", "entered_by_code",
		"procedure_code", "procedure_code_modifier",
	},
	"RXA": {
		"give_sub_id_counter", "administration_sub_id_counter", "date_time_start_of_administration",
		"date_time_end_of_administration", "administered_code", "administered_amount",
		"administered_units", "administered_dosage_form", "administration_notes",
		"administering_provider", "administered_at_location", "administered_per_time_unit",
		"administered_strength", "administered_strength_units", "substance_lot_number",
		"substance_expiration_date", "substance_manufacturer_name", "substance_refusal_reason",
		"indication", "completion_status", "action_code",
		"system_entry_date_time", "administered_drug_strength_volume", "administered_drug_strength_volume_units",
		"administered_barcode_identifier", "pharmacy_order_type",
	},
	"SCH": {
		"placer_appointment_id", "filler_appointment_id", "occurrence_number",
		"placer_group_number", "schedule_id", "event_reason",
		"appointment_reason", "appointment_type", "appointment_duration",
		"appointment_duration_units", "appointment_timing_quantity", "placer_contact_person",
		"placer_contact_phone_number", "placer_contact_address", "placer_contact_location",
		"filler_contact_person", "filler_contact_phone_number", "filler_contact_address",
		"filler_contact_location", "entered_by_person", "entered_by_phone_number",
		"entered_by_location", "parent_placer_appointment_id", "parent_filler_appointment_id",
		"filler_status_code", "placer_status_code", "filler_supplemental_service_information",
		"placer_supplemental_service_information", "requested_new_appointment_booking_handle", "referenced_by",
	},
}
